package models

import "strings"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so a user-controlled identifier containing ':' cannot reach a neighbouring
// bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// ActorKey is the bucket for an authenticated actor.
func ActorKey(actorID string) string {
	return "actor:" + SanitizeKeySegment(actorID)
}

// IPKey is the bucket for a request without an actor.
func IPKey(ip string) string {
	return "ip:" + SanitizeKeySegment(ip)
}

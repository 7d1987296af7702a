// Package attrs reads values back out of slog-style key/value argument lists.
package attrs

// ExtractString returns the string stored under key in a [k1, v1, k2, v2, ...]
// list, or "" when the key is missing or its value is not a string.
func ExtractString(list []any, key string) string {
	for i := 0; i+1 < len(list); i += 2 {
		if k, ok := list[i].(string); ok && k == key {
			if v, ok := list[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// First returns the first non-empty string found under keys, in order.
func First(list []any, keys ...string) string {
	for _, key := range keys {
		if v := ExtractString(list, key); v != "" {
			return v
		}
	}
	return ""
}

// Package actionclient executes actions that an assistant embedded in a plain
// text reply, for surfaces that do not receive first-class tool calls.
package actionclient

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Payload is the body of POST /v1/actions.
type Payload struct {
	Action   string         `json:"action"`
	Params   map[string]any `json:"params"`
	Timezone string         `json:"timezone,omitempty"`
}

// Method names how a payload was found in the reply.
type Method string

const (
	MethodFencedBlock Method = "fenced_block"
	MethodBareObject  Method = "bare_object"
	MethodPrefix      Method = "action_prefix"
)

// Extraction is an action found in a reply. Text is the reply with only the
// matched fragment removed.
type Extraction struct {
	Payload Payload
	Text    string
	Method  Method
}

var fencedJSON = regexp.MustCompile("(?s)```[ \\t]*(?i:json)[ \\t]*\\r?\\n?(.*?)```")

const actionPrefix = "ACTION:"

// Extract finds the first embedded action. Methods are tried in order: a
// ```json fenced block, the span from the first '{' to the last '}', then an
// "ACTION: {...}" prefix. Only a JSON object with a non-empty string "action"
// counts. It never panics on malformed input.
func Extract(text string) (Extraction, bool) {
	for _, loc := range fencedJSON.FindAllStringSubmatchIndex(text, -1) {
		if p, ok := parsePayload(text[loc[2]:loc[3]]); ok {
			return Extraction{Payload: p, Text: cut(text, loc[0], loc[1]), Method: MethodFencedBlock}, true
		}
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if p, ok := parsePayload(text[start : end+1]); ok {
			// An "ACTION:" label directly before the object goes with it.
			if head := strings.TrimRight(text[:start], " \t"); strings.HasSuffix(head, actionPrefix) {
				return Extraction{Payload: p, Text: cut(text, len(head)-len(actionPrefix), end+1), Method: MethodPrefix}, true
			}
			return Extraction{Payload: p, Text: cut(text, start, end+1), Method: MethodBareObject}, true
		}
	}

	for offset := 0; ; {
		i := strings.Index(text[offset:], actionPrefix)
		if i < 0 {
			break
		}
		prefixAt := offset + i
		offset = prefixAt + len(actionPrefix)

		rest := text[offset:]
		trimmed := strings.TrimLeft(rest, " \t\r\n")
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		objStart := offset + len(rest) - len(trimmed)
		objEnd, ok := matchBrace(text, objStart)
		if !ok {
			continue
		}
		if p, ok := parsePayload(text[objStart:objEnd]); ok {
			return Extraction{Payload: p, Text: cut(text, prefixAt, objEnd), Method: MethodPrefix}, true
		}
	}
	return Extraction{}, false
}

func parsePayload(raw string) (Payload, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal(obj["action"], &p.Action); err != nil || strings.TrimSpace(p.Action) == "" {
		return Payload{}, false
	}
	p.Action = strings.TrimSpace(p.Action)

	for _, key := range []string{"params", "parameters"} {
		if rawParams, ok := obj[key]; ok {
			if err := json.Unmarshal(rawParams, &p.Params); err != nil {
				return Payload{}, false
			}
			break
		}
	}
	if p.Params == nil {
		p.Params = map[string]any{}
	}
	if rawTZ, ok := obj["timezone"]; ok {
		_ = json.Unmarshal(rawTZ, &p.Timezone)
	}
	return p, true
}

// matchBrace returns the index just past the '}' closing the object that
// opens at start, skipping braces inside JSON strings.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func cut(s string, start, end int) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s[:start]+s[end:], "\n\n"))
}

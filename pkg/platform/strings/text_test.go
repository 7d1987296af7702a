package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Jane Doe", expected: "jane doe"},
		{input: "  jane\t  DOE  ", expected: "jane doe"},
		{input: "Doe,   Jane", expected: "doe, jane"},
		{input: "   ", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestDedupeLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "lowercases and trims",
			input:    []string{" Client_ID ", "content"},
			expected: []string{"client_id", "content"},
		},
		{
			name:     "drops repeats and empties preserving order",
			input:    []string{"content", "", "CLIENT_ID", "content", "  ", "client_id"},
			expected: []string{"content", "client_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeLower(tt.input))
		})
	}
}

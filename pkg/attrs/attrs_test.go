package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	list := []any{"identifier", "actor:42", "count", 3, 7, "ignored", "reason", "limit exceeded", "dangling"}

	assert.Equal(t, "actor:42", ExtractString(list, "identifier"))
	assert.Equal(t, "limit exceeded", ExtractString(list, "reason"))
	assert.Empty(t, ExtractString(list, "count"))
	assert.Empty(t, ExtractString(list, "dangling"))
	assert.Empty(t, ExtractString(nil, "identifier"))
}

func TestFirst(t *testing.T) {
	list := []any{"ip", "10.0.0.1", "user_id", ""}

	assert.Equal(t, "10.0.0.1", First(list, "user_id", "ip"))
	assert.Empty(t, First(list, "client_id"))
}

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("text")
	SetLevel("WARN")
	defer SetLevel("INFO")

	Debug("should not appear")
	Info("should not appear either")
	Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestJSONFormatProducesValidLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	SetLevel("DEBUG")
	defer SetFormat("text")

	Info("hello %s", "world")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "hello world", decoded["message"])
	assert.Equal(t, "INFO", decoded["level"])
}

func TestAuditIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	SetLevel("INFO")
	defer SetFormat("text")

	Audit("PUT_COMMIT", map[string]any{
		"session_id": "abc123",
		"library_id": "lib1",
		"path":       "hello.txt",
		"outcome":    "success",
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "PUT_COMMIT", decoded["event"])
	assert.Equal(t, "lib1", decoded["library_id"])
}

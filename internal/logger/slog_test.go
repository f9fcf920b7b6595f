package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv(EnvVar, "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)
	l.Info("frame received", "size", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "frame received", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.EqualValues(t, 3, rec["size"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	t.Setenv(EnvVar, "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, WarnLevel, false)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSlogLogger_WithSharesLevel(t *testing.T) {
	t.Setenv(EnvVar, "")

	var buf bytes.Buffer
	parent := NewSlogWriter(&buf, ErrorLevel, false)
	child := parent.With("device", "/dev/ttyUSB0")

	parent.SetLevel(InfoLevel)
	child.Info("opened")

	assert.Contains(t, buf.String(), `"device":"/dev/ttyUSB0"`)
	assert.Equal(t, InfoLevel, child.Level())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestMockLogger(t *testing.T) {
	m := NewMockLogger()
	m.On("Error", "read failed", []any{"err", "eof"}).Once()

	m.Error("read failed", "err", "eof")
	m.AssertExpectations(t)
}

func TestSetDefault(t *testing.T) {
	t.Setenv(EnvVar, "")

	prev := GetLogger()
	t.Cleanup(func() { SetDefault(prev) })

	var buf bytes.Buffer
	SetDefault(NewSlogWriter(&buf, WarnLevel, false))
	Info("dropped")
	Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")

	SetDefault(nil)
	assert.NotNil(t, GetLogger())
}

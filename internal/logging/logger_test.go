package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level LogLevel, maxHist int) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := New(&Config{Level: level, MaxHistory: maxHist, Output: buf})
	require.NoError(t, err)
	return l, buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLogger_WritesStructuredOutput(t *testing.T) {
	l, buf := newTestLogger(t, LevelInfo, 10)

	l.Info("tts", "synthesis complete", map[string]interface{}{"bytes": 42})

	out := buf.String()
	assert.Contains(t, out, `"component":"tts"`)
	assert.Contains(t, out, `"message":"synthesis complete"`)
	assert.Contains(t, out, `"bytes":42`)
	assert.Contains(t, out, `"app":"voiceavatar"`)
}

func TestLogger_LevelFiltersHistory(t *testing.T) {
	l, buf := newTestLogger(t, LevelWarn, 10)

	l.Debug("a", "hidden", nil)
	l.Info("a", "hidden too", nil)
	l.Warn("a", "shown", nil)

	hist := l.GetHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, "shown", hist[0].Message)
	assert.Equal(t, "warn", hist[0].Level)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestLogger_HistoryIsBounded(t *testing.T) {
	l, _ := newTestLogger(t, LevelInfo, 3)

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		l.Info("hist", msg, nil)
	}

	hist := l.GetHistory(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "three", hist[0].Message)
	assert.Equal(t, "five", hist[2].Message)

	last := l.GetHistory(1)
	require.Len(t, last, 1)
	assert.Equal(t, "five", last[0].Message)
}

func TestLogger_ErrorIncludesCause(t *testing.T) {
	l, buf := newTestLogger(t, LevelInfo, 10)

	l.Error("audio", "playback failed", errors.New("decode"), map[string]interface{}{"turn": 3})

	hist := l.GetHistory(1)
	require.Len(t, hist, 1)
	assert.Equal(t, "turn=3, error=decode", hist[0].Data)
	assert.Contains(t, buf.String(), `"error":"decode"`)
}

func TestLogger_OnLogStreamsEntries(t *testing.T) {
	l, _ := newTestLogger(t, LevelInfo, 10)

	var got []LogEntry
	l.SetOnLog(func(e LogEntry) { got = append(got, e) })

	l.Info("server", "session opened", map[string]interface{}{"b": 2, "a": 1})

	require.Len(t, got, 1)
	assert.Equal(t, "server", got[0].Component)
	assert.Equal(t, "a=1, b=2", got[0].Data)
}

func TestLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{LogDir: dir, Level: LevelInfo})
	require.NoError(t, err)

	l.Info("file", "to disk", nil)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to disk"))
}

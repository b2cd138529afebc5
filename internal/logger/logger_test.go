package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{name: "production uses json", environment: "production", wantJSON: true},
		{name: "development uses pretty", environment: "development", wantJSON: false},
		{name: "empty uses pretty", environment: "", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Environment: tt.environment, Level: slog.LevelInfo})
			log.Info("hello", slog.String("topic", "/topic/questions"))

			out := buf.String()
			assert.Contains(t, out, "hello")
			if tt.wantJSON {
				assert.Contains(t, out, `"topic":"/topic/questions"`)
			} else {
				assert.Contains(t, out, "INF")
				assert.Contains(t, out, "/topic/questions")
			}
		})
	}
}

func TestSetLevel_AffectsDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelInfo})
	child := log.Component("transport")

	child.Debug("hidden")
	assert.Empty(t, buf.String())

	log.SetLevel(slog.LevelDebug)
	child.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"component":"transport"`)
	assert.Equal(t, slog.LevelDebug, log.Level())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestPrettyHandler_GroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(h).WithGroup("push").With(slog.String("type", "NEW_ANSWER"))

	log.Warn("dropped", slog.String("reason", "bad json"))

	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "push.type")
	assert.Contains(t, out, "NEW_ANSWER")
	assert.Contains(t, out, `"bad json"`)
}

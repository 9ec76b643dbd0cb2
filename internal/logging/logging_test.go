package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEV", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in, slog.LevelInfo); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("hello", "room", "r1")
	if !strings.Contains(buf.String(), `"room":"r1"`) {
		t.Errorf("expected json output, got %q", buf.String())
	}
}

func TestPionFactoryScopesAndFilters(t *testing.T) {
	var buf bytes.Buffer
	f := PionFactory{Logger: New(&buf, slog.LevelInfo, "text")}
	l := f.NewLogger("ice")

	l.Debugf("hidden %d", 1)
	l.Warnf("candidate %s failed", "host")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked through info level: %q", out)
	}
	if !strings.Contains(out, "candidate host failed") || !strings.Contains(out, "scope=ice") {
		t.Errorf("unexpected output %q", out)
	}
}

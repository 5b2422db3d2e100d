package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSONByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, Config{LogLevel: "info"}, false)
	log.Debug("hidden")
	log.Info("invitation.accept.ok", "attempts", 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "invitation.accept.ok" {
		t.Fatalf("msg=%v", rec["msg"])
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, Config{LogLevel: "debug", LogFormat: "Pretty"}, false)
	log.Warn("invitation.accept.rejected", "kind", "permission-denied")

	out := buf.String()
	if !strings.Contains(out, "lvl=[WARN]") || !strings.Contains(out, "msg=invitation.accept.rejected") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
	if !strings.Contains(out, "kind=permission-denied") {
		t.Fatalf("missing attr: %q", out)
	}
}

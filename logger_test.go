package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerMasksSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Config{LogFormat: "json", LogLevel: "debug"})

	logger.Info("login", "password", "hunter2", "path", "/admin/login",
		slog.Group("req", "cookie", "admin_token=abc"))
	logger.With("token", "abc").Debug("with attrs")

	out := buf.String()
	for _, secret := range []string{"hunter2", "admin_token=abc", `"token":"abc"`} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaked %q: %s", secret, out)
		}
	}

	var entry map[string]any
	line, _, _ := strings.Cut(out, "\n")
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["password"] != maskValue || entry["path"] != "/admin/login" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Config{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

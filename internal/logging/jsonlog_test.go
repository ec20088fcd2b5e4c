package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel("info")

	Info("collect_account_ok", map[string]any{"handle": "alice", "tweets": 3})
	Debug("hidden", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single line, got %d: %q", len(lines), buf.String())
	}
	var e map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if e["message"] != "collect_account_ok" || e["level"] != "info" || e["handle"] != "alice" {
		t.Fatalf("unexpected entry: %v", e)
	}
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel("warn")
	SetLevel("loud")
	Info("skipped", nil)
	Warn("kept", nil)
	SetLevel("info")
	if strings.Contains(buf.String(), "skipped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("level filter not applied: %q", buf.String())
	}
}

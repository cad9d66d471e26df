package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogLevelInfo, true)

	l.Error("write failed", map[string]any{"name": "a.txt"}, errors.New("disk full"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != LogLevelError || entry.Message != "write failed" || entry.Error != "disk full" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["name"] != "a.txt" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestLogger_TextSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogLevelDebug, false)

	l.Info("request", map[string]any{"status": 200, "method": "GET", "bytes": 12})

	line := buf.String()
	if !strings.HasPrefix(line, "[info] ") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, " bytes=12 method=GET status=200") {
		t.Errorf("fields not sorted: %q", line)
	}
}

func TestLogger_MinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogLevelWarn, false)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("entries below warn were written: %q", buf.String())
	}

	l.Warn("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn entry missing: %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"warn":    LogLevelWarn,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, ok)
			}
		})
	}
}

func TestNewStderrOnly(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("warn", "", &buf)

	l.Info("hidden")
	l.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "key=value") {
		t.Errorf("output = %s", out)
	}
}

func TestNewUnknownLevelReported(t *testing.T) {
	var buf bytes.Buffer
	newLogger("loud", "", &buf)
	if !strings.Contains(buf.String(), "invalid log level") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestNewMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := newLogger("info", dir, &buf).With("component", "test")

	l.Info("catalog ready", "source", "MERGED")

	if !strings.Contains(buf.String(), "catalog ready") {
		t.Errorf("stderr output = %s", buf.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v\n%s", err, data)
	}
	if rec["msg"] != "catalog ready" || rec["source"] != "MERGED" || rec["component"] != "test" {
		t.Errorf("file record = %v", rec)
	}
}

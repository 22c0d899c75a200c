package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_CreatesDirAndWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(Options{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	line := string(b)
	if !strings.Contains(line, `"msg":"test_message_from_logging_test"`) || !strings.Contains(line, `"ts":`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(Options{Dir: dir, Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("dropped_info")
	log.Warn("kept_warn")
	_ = log.Sync()

	b, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(b), "dropped_info") || !strings.Contains(string(b), "kept_warn") {
		t.Fatalf("level not applied: %s", b)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel(""); err != nil || l != zapcore.InfoLevel {
		t.Fatalf("empty: %v %v", l, err)
	}
	if l, err := ParseLevel("error"); err != nil || l != zapcore.ErrorLevel {
		t.Fatalf("error: %v %v", l, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

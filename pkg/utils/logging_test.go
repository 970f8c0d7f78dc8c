package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected zapcore.Level
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: zapcore.DebugLevel},
		{name: "info level", input: "INFO", expected: zapcore.InfoLevel},
		{name: "empty defaults to info", input: "", expected: zapcore.InfoLevel},
		{name: "warn level", input: "WARN", expected: zapcore.WarnLevel},
		{name: "warning level", input: "WARNING", expected: zapcore.WarnLevel},
		{name: "error level", input: "ERROR", expected: zapcore.ErrorLevel},
		{name: "case insensitive", input: "debug", expected: zapcore.DebugLevel},
		{name: "invalid level", input: "INVALID", expected: zapcore.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if level != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gateway.log")

	cfg := DefaultLoggingConfig()
	cfg.File = logFile
	cfg.Level = "WARN"

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("suppressed")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" {
		t.Errorf("msg = %v, want kept", entry["msg"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "LOUD"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLogger(LoggingConfig{Level: "INFO", Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info to be filtered at LevelWarn, got: %s", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message in output, got: %s", buf.String())
	}
}

func TestLoggerFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("opened disk", "index", 2, "path", "/tmp/d0")
	output := buf.String()
	if !strings.Contains(output, "index=2") || !strings.Contains(output, "path=/tmp/d0") {
		t.Errorf("expected key=value pairs in output, got: %s", output)
	}
}

func TestLoggerPrintfAndDebugf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("tried %d times", 3)
	if !strings.Contains(buf.String(), "tried 3 times") {
		t.Errorf("expected formatted debug message, got: %s", buf.String())
	}

	buf.Reset()
	logger.Printf("disk %d ready", 0)
	if !strings.Contains(buf.String(), "disk 0 ready") {
		t.Errorf("expected formatted printf message, got: %s", buf.String())
	}
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() should return the same logger instance across calls")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("routed through custom logger")
	if !strings.Contains(buf.String(), "routed through custom logger") {
		t.Errorf("expected message routed to custom logger, got: %s", buf.String())
	}
}

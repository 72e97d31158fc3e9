package internal

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetLogLevel(LogLevelDebug)
	if logLevel != LogLevelDebug {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetLogLevel(LogLevelError)
	if logLevel != LogLevelError {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelError", logLevel)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetVerbose(true)
	if logLevel != LogLevelDebug {
		t.Errorf("SetVerbose(true) logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetVerbose(false)
	if logLevel != LogLevelInfo {
		t.Errorf("SetVerbose(false) logLevel = %v, want LogLevelInfo", logLevel)
	}
}

func TestLogFunctions_RespectLevel(t *testing.T) {
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer func() {
		SetLogOutput(os.Stderr)
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(LogLevelInfo)
	LogDebug("hidden debug message")
	LogInfo("visible info message")

	out := buf.String()
	if strings.Contains(out, "hidden debug message") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "visible info message") {
		t.Errorf("info message missing from output: %q", out)
	}
}

func TestLogLevels(t *testing.T) {
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}

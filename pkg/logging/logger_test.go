package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLogger(LevelWarn, &buffer)

	logger.Debugf("should not appear")
	if buffer.Len() != 0 {
		t.Fatalf("debug message was emitted despite warn-level logger: %q", buffer.String())
	}

	logger.Warnf("disk usage at %d%%", 90)
	if !strings.Contains(buffer.String(), "disk usage at 90%") {
		t.Fatalf("warning message missing from output: %q", buffer.String())
	}
}

func TestSubloggerPrefixNesting(t *testing.T) {
	var buffer bytes.Buffer
	root := NewLogger(LevelDebug, &buffer)
	child := root.Sublogger("dispatch").Sublogger("stream")

	child.Debugf("hello")

	if !strings.Contains(buffer.String(), "[dispatch.stream] hello") {
		t.Fatalf("expected nested prefix in output: %q", buffer.String())
	}
}

func TestNilLoggerIsANoOp(t *testing.T) {
	var logger *Logger
	logger.Warnf("this must not panic")
	logger.Error(nil)
}

func TestNameToLevel(t *testing.T) {
	if level, ok := NameToLevel("warn"); !ok || level != LevelWarn {
		t.Fatalf("expected LevelWarn, got %v (ok=%v)", level, ok)
	}
	if _, ok := NameToLevel("bogus"); ok {
		t.Fatal("expected invalid level name to fail")
	}
}

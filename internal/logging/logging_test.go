package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "proposal", "p1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "proposal=p1") {
		t.Errorf("output = %q, want warn line with keyvals", out)
	}
}

func TestNewWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty")
	logger.Debug("dbg")
	logger.Info("inf")

	out := buf.String()
	if strings.Contains(out, "dbg") || !strings.Contains(out, "inf") {
		t.Errorf("output = %q, want info only", out)
	}
}

func TestCloseError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info")

	CloseError(logger, "journal", nil)
	if buf.Len() != 0 {
		t.Error("nil error should not log")
	}
	CloseError(logger, "journal", errors.New("boom"))
	if !strings.Contains(buf.String(), "journal") {
		t.Errorf("output = %q", buf.String())
	}
}

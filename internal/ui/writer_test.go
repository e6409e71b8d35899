package ui

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRawSafeWriter_TranslatesNewlines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare newline", "level=WARN msg=oops\n", "level=WARN msg=oops\r\n"},
		{"already crlf", "line\r\n", "line\r\n"},
		{"several lines", "a\nb\r\nc\n", "a\r\nb\r\nc\r\n"},
		{"no newline", "partial", "partial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := NewRawSafeWriter(&buf).Write([]byte(tt.input))
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if n != len(tt.input) {
				t.Errorf("Expected %d bytes reported, got %d", len(tt.input), n)
			}
			if buf.String() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, buf.String())
			}
		})
	}
}

func TestRawSafeWriter_SlogRecordsEndInCRLF(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(NewRawSafeWriter(&buf), nil))

	logger.Warn("Skipped undecodable log chunk", "error", "bad frame")

	if !strings.HasSuffix(buf.String(), "\r\n") {
		t.Errorf("Expected record to end in \\r\\n, got %q", buf.String())
	}
	if strings.Contains(strings.ReplaceAll(buf.String(), "\r\n", ""), "\n") {
		t.Errorf("Found bare newline in %q", buf.String())
	}
}

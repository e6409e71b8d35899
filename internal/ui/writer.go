package ui

import (
	"bytes"
	"io"
)

// RawSafeWriter turns bare "\n" into "\r\n" so log lines written while the
// terminal is in raw mode start at column zero.
type RawSafeWriter struct {
	w io.Writer
}

func NewRawSafeWriter(w io.Writer) *RawSafeWriter {
	return &RawSafeWriter{w: w}
}

// Write reports len(p) on success so callers see their own byte count.
func (r *RawSafeWriter) Write(p []byte) (int, error) {
	out := bytes.ReplaceAll(p, []byte("\r\n"), []byte("\n"))
	out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	if _, err := r.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

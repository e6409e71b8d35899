package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"

	"dazzle/pkg/runtime"
)

const (
	frameHeaderLen = 8
	ttyReadSize    = 32 * 1024
	// Frames larger than this are treated as a corrupt header.
	maxFrameSize = 16 * 1024 * 1024
)

// logStream decodes the body of a Docker logs request into LogChunks.
//
// Without a tty the daemon multiplexes stdout and stderr into frames with an
// 8 byte header: [stream type, 0, 0, 0, size uint32 big endian]. With a tty
// the body is the raw terminal output, all of which is reported as stdout.
// A tty chunk's Data shares one read buffer and is only valid until the next
// call to Next.
type logStream struct {
	body      io.ReadCloser
	tty       bool
	header    [frameHeaderLen]byte
	raw       []byte
	closeOnce sync.Once
	closeErr  error
}

func newLogStream(body io.ReadCloser, tty bool) *logStream {
	return &logStream{body: body, tty: tty}
}

func (s *logStream) Next() (runtime.LogChunk, error) {
	if s.tty {
		return s.nextRaw()
	}
	return s.nextFrame()
}

func (s *logStream) nextRaw() (runtime.LogChunk, error) {
	if s.raw == nil {
		s.raw = make([]byte, ttyReadSize)
	}
	for {
		n, err := s.body.Read(s.raw)
		if n > 0 {
			// Data is returned before the error; the error resurfaces on the next call.
			return runtime.LogChunk{Stream: runtime.StreamStdout, Data: s.raw[:n]}, nil
		}
		if err != nil {
			return runtime.LogChunk{}, err
		}
	}
}

func (s *logStream) nextFrame() (runtime.LogChunk, error) {
	if _, err := io.ReadFull(s.body, s.header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return runtime.LogChunk{}, fmt.Errorf("truncated log frame header: %w", err)
		}
		return runtime.LogChunk{}, err
	}

	size := binary.BigEndian.Uint32(s.header[4:])
	if size > maxFrameSize {
		return runtime.LogChunk{}, fmt.Errorf("log frame of %d bytes exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(s.body, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return runtime.LogChunk{}, fmt.Errorf("truncated log frame payload: %w", err)
	}

	switch stdcopy.StdType(s.header[0]) {
	case stdcopy.Stdin:
		return runtime.LogChunk{Stream: runtime.StreamStdin, Data: payload}, nil
	case stdcopy.Stdout:
		return runtime.LogChunk{Stream: runtime.StreamStdout, Data: payload}, nil
	case stdcopy.Stderr:
		return runtime.LogChunk{Stream: runtime.StreamStderr, Data: payload}, nil
	case stdcopy.Systemerr:
		return runtime.LogChunk{}, fmt.Errorf("%w: daemon error: %s", runtime.ErrMalformedChunk, payload)
	default:
		return runtime.LogChunk{}, fmt.Errorf("%w: unknown stream type %d", runtime.ErrMalformedChunk, s.header[0])
	}
}

func (s *logStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

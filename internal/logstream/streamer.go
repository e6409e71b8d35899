package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	dzerrors "dazzle/internal/errors"
	"dazzle/pkg/runtime"
)

// Warner receives errors that do not stop streaming.
type Warner interface {
	Warn(err error)
}

// Streamer forwards a container's combined output to local writers.
type Streamer struct {
	containerRuntime runtime.ContainerRuntime
	stdout           io.Writer
	stderr           io.Writer
	warner           Warner
	tty              bool
}

// NewStreamer creates a Streamer. tty must match the container's tty flag.
func NewStreamer(containerRuntime runtime.ContainerRuntime, stdout, stderr io.Writer, warner Warner, tty bool) *Streamer {
	return &Streamer{
		containerRuntime: containerRuntime,
		stdout:           stdout,
		stderr:           stderr,
		warner:           warner,
		tty:              tty,
	}
}

// Stream follows the logs of containerID until the remote side closes them
// (nil), the stream breaks (error), or ctx is cancelled (ctx.Err()).
// Stdout chunks go to stdout, stderr chunks to stderr, stdin echoes nowhere.
// A chunk that cannot be decoded or written is reported and skipped.
func (s *Streamer) Stream(ctx context.Context, containerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stream, err := s.containerRuntime.StreamLogs(ctx, containerID, runtime.LogOptions{
		Follow: true,
		Stdout: true,
		Stderr: true,
		TTY:    s.tty,
	})
	if err != nil {
		return fmt.Errorf("failed to open log stream: %w", err)
	}
	defer stream.Close()

	// Cancellation must unblock a Next that is waiting on the network.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	var forwarded, dropped int
	defer func() {
		slog.Debug("Log stream finished", "containerID", containerID, "forwarded", forwarded, "dropped", dropped)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := stream.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, runtime.ErrMalformedChunk) {
				dropped++
				s.warn("Skipped undecodable log chunk", err)
				continue
			}
			return fmt.Errorf("log stream broke: %w", err)
		}

		var w io.Writer
		switch chunk.Stream {
		case runtime.StreamStdout:
			w = s.stdout
		case runtime.StreamStderr:
			w = s.stderr
		default:
			dropped++
			continue
		}

		if _, err := w.Write(chunk.Data); err != nil {
			s.warn(fmt.Sprintf("Failed to write container %s", chunk.Stream), err)
			continue
		}
		forwarded++
	}
}

func (s *Streamer) warn(what string, err error) {
	if s.warner == nil {
		slog.Warn(what, "error", err)
		return
	}
	s.warner.Warn(dzerrors.NewStreamError("stream: "+what, "", "", err))
}

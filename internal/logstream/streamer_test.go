package logstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dazzle/pkg/runtime"
	"dazzle/pkg/runtime/runtimetest"
)

type recordingWarner struct {
	mu   sync.Mutex
	errs []error
}

func (w *recordingWarner) Warn(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = append(w.errs, err)
}

func (w *recordingWarner) all() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.errs...)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func setup(t *testing.T, stream *runtimetest.FakeLogStream, tty bool) *runtimetest.MockContainerRuntime {
	t.Helper()
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("StreamLogs", mock.Anything, "c0ffee", runtime.LogOptions{Follow: true, Stdout: true, Stderr: true, TTY: tty}).
		Return(stream, nil).Once()
	return rt
}

func TestStream_RoutesByTag(t *testing.T) {
	stream := runtimetest.NewFakeLogStream()
	rt := setup(t, stream, false)
	var stdout, stderr bytes.Buffer

	stream.Send(runtime.StreamStdout, "Loading: 0 packages\n")
	stream.Send(runtime.StreamStderr, "WARNING: ignoring JAVA_HOME\n")
	stream.Send(runtime.StreamStdin, "typed input\n")
	stream.Send(runtime.StreamStdout, "INFO: Build completed\n")
	stream.Send(runtime.StreamStderr, "Elapsed time: 1.2s\n")
	stream.End()

	err := NewStreamer(rt, &stdout, &stderr, &recordingWarner{}, false).Stream(context.Background(), "c0ffee")

	require.NoError(t, err)
	assert.Equal(t, "Loading: 0 packages\nINFO: Build completed\n", stdout.String())
	assert.Equal(t, "WARNING: ignoring JAVA_HOME\nElapsed time: 1.2s\n", stderr.String())
	assert.NotContains(t, stdout.String()+stderr.String(), "typed input")
	assert.True(t, stream.Closed())
	rt.AssertExpectations(t)
}

func TestStream_MalformedChunkIsSkipped(t *testing.T) {
	stream := runtimetest.NewFakeLogStream()
	rt := setup(t, stream, false)
	warner := &recordingWarner{}
	var stdout bytes.Buffer

	stream.Send(runtime.StreamStdout, "before\n")
	stream.SendError(fmt.Errorf("%w: unknown stream type 9", runtime.ErrMalformedChunk))
	stream.Send(runtime.StreamStdout, "after\n")
	stream.End()

	err := NewStreamer(rt, &stdout, &bytes.Buffer{}, warner, false).Stream(context.Background(), "c0ffee")

	require.NoError(t, err)
	assert.Equal(t, "before\nafter\n", stdout.String())
	require.Len(t, warner.all(), 1)
	assert.ErrorIs(t, warner.all()[0], runtime.ErrMalformedChunk)
}

func TestStream_WriteErrorIsReportedAndStreamingContinues(t *testing.T) {
	stream := runtimetest.NewFakeLogStream()
	rt := setup(t, stream, true)
	warner := &recordingWarner{}
	var stderr bytes.Buffer

	stream.Send(runtime.StreamStdout, "lost\n")
	stream.Send(runtime.StreamStderr, "kept\n")
	stream.End()

	err := NewStreamer(rt, failingWriter{}, &stderr, warner, true).Stream(context.Background(), "c0ffee")

	require.NoError(t, err)
	assert.Equal(t, "kept\n", stderr.String())
	require.Len(t, warner.all(), 1)
	assert.Contains(t, warner.all()[0].Error(), "broken pipe")
}

func TestStream_BrokenStreamEndsWithError(t *testing.T) {
	stream := runtimetest.NewFakeLogStream()
	rt := setup(t, stream, false)

	stream.SendError(errors.New("connection reset by peer"))

	err := NewStreamer(rt, &bytes.Buffer{}, &bytes.Buffer{}, &recordingWarner{}, false).Stream(context.Background(), "c0ffee")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestStream_OpenFailure(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("StreamLogs", mock.Anything, "c0ffee", mock.Anything).Return(nil, fmt.Errorf("logs: %w", runtime.ErrNotFound))

	err := NewStreamer(rt, &bytes.Buffer{}, &bytes.Buffer{}, &recordingWarner{}, false).Stream(context.Background(), "c0ffee")

	assert.ErrorIs(t, err, runtime.ErrNotFound)
}

func TestStream_CancellationUnblocksPendingRead(t *testing.T) {
	stream := runtimetest.NewFakeLogStream()
	opened := make(chan struct{})
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("StreamLogs", mock.Anything, "c0ffee", mock.Anything).
		Run(func(mock.Arguments) { close(opened) }).
		Return(stream, nil).Once()
	var stdout bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewStreamer(rt, &stdout, &bytes.Buffer{}, &recordingWarner{}, false).Stream(ctx, "c0ffee")
	}()

	// The stream is never ended: the container is still running.
	<-opened
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
	assert.True(t, stream.Closed())
}

func TestStream_AlreadyCancelledDoesNotOpen(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamer(rt, &bytes.Buffer{}, &bytes.Buffer{}, nil, false).Stream(ctx, "c0ffee")

	assert.ErrorIs(t, err, context.Canceled)
	rt.AssertNotCalled(t, "StreamLogs", mock.Anything, mock.Anything, mock.Anything)
}

// Package runtimetest provides test doubles for runtime.ContainerRuntime.
package runtimetest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"dazzle/pkg/runtime"
)

// MockContainerRuntime is a mock implementation of the ContainerRuntime interface
type MockContainerRuntime struct {
	mock.Mock
}

var _ runtime.ContainerRuntime = (*MockContainerRuntime)(nil)

func (m *MockContainerRuntime) PullImage(ctx context.Context, ref string, observer runtime.ProgressObserver) error {
	args := m.Called(ctx, ref, observer)
	return args.Error(0)
}

func (m *MockContainerRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockContainerRuntime) CreateContainer(ctx context.Context, cfg runtime.RunConfiguration) (runtime.CreateResult, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(runtime.CreateResult), args.Error(1)
}

func (m *MockContainerRuntime) StartContainer(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContainerRuntime) StreamLogs(ctx context.Context, id string, opts runtime.LogOptions) (runtime.LogStream, error) {
	args := m.Called(ctx, id, opts)
	stream, _ := args.Get(0).(runtime.LogStream)
	return stream, args.Error(1)
}

func (m *MockContainerRuntime) WaitContainer(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockContainerRuntime) RemoveContainer(ctx context.Context, id string, opts runtime.RemoveOptions) error {
	args := m.Called(ctx, id, opts)
	return args.Error(0)
}

// ErrStreamClosed is returned by FakeLogStream.Next after Close.
var ErrStreamClosed = errors.New("log stream closed")

type item struct {
	chunk runtime.LogChunk
	err   error
}

// FakeLogStream is a LogStream fed by the test. Next blocks until the test
// sends a chunk, ends the stream, or the stream is closed.
type FakeLogStream struct {
	items  chan item
	closed chan struct{}

	// IgnoreClose makes Close leave a pending Next blocked, like a
	// connection that never notices it was torn down.
	IgnoreClose bool

	endOnce   sync.Once
	closeOnce sync.Once
}

func NewFakeLogStream() *FakeLogStream {
	return &FakeLogStream{
		items:  make(chan item, 64),
		closed: make(chan struct{}),
	}
}

func (s *FakeLogStream) Send(stream runtime.StreamType, data string) {
	s.items <- item{chunk: runtime.LogChunk{Stream: stream, Data: []byte(data)}}
}

func (s *FakeLogStream) SendError(err error) {
	s.items <- item{err: err}
}

// End closes the remote side: once buffered items drain Next returns io.EOF.
func (s *FakeLogStream) End() {
	s.endOnce.Do(func() { close(s.items) })
}

func (s *FakeLogStream) Next() (runtime.LogChunk, error) {
	if s.IgnoreClose {
		it, ok := <-s.items
		if !ok {
			return runtime.LogChunk{}, io.EOF
		}
		return it.chunk, it.err
	}

	select {
	case it, ok := <-s.items:
		if !ok {
			return runtime.LogChunk{}, io.EOF
		}
		return it.chunk, it.err
	case <-s.closed:
		return runtime.LogChunk{}, ErrStreamClosed
	}
}

func (s *FakeLogStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (s *FakeLogStream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

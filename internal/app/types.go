package app

import (
	"context"
	"os"

	"dazzle/pkg/runtime"
)

// ContainerLauncher creates and starts the build container.
type ContainerLauncher interface {
	Launch(ctx context.Context, cfg runtime.RunConfiguration) (*runtime.ContainerHandle, error)
}

// LogStreamer forwards container output until the stream ends or ctx is cancelled.
type LogStreamer interface {
	Stream(ctx context.Context, containerID string) error
}

// TerminationWatcher completes once on the first termination request.
type TerminationWatcher interface {
	Done() <-chan struct{}
	Signal() os.Signal
	Trigger(sig os.Signal)
}

// TerminalController scopes raw terminal mode around the streaming phase.
type TerminalController interface {
	Enter(onInterrupt func()) (restore func(), err error)
}

// Warner reports errors that do not change the run's outcome.
type Warner interface {
	Warn(err error)
}

// Located in pkg/runtime/runtime.go
package runtime

import (
	"context"
	"errors"
)

var (
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrImageNotFound      = errors.New("image not found")
	ErrInvalidConfig      = errors.New("invalid container configuration")
	ErrNotFound           = errors.New("container not found")
	ErrAlreadyRunning     = errors.New("container already running")

	// ErrMalformedChunk marks a single undecodable log frame. The stream
	// stays usable after it is returned.
	ErrMalformedChunk = errors.New("malformed log chunk")
)

// Mount binds a host path into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// InteractiveFlags controls how the container's standard streams are wired.
type InteractiveFlags struct {
	AttachStdin  bool
	AttachStdout bool
	AttachStderr bool
	OpenStdin    bool
	StdinOnce    bool
	TTY          bool
}

// RunConfiguration is the launch specification for one build container.
type RunConfiguration struct {
	Image       string
	Name        string
	Labels      map[string]string
	WorkingDir  string
	Command     []string
	Mounts      []Mount
	Interactive InteractiveFlags
}

// CreateResult is returned by the runtime after a container is created.
type CreateResult struct {
	ID       string
	Warnings []string
}

// ContainerState is the lifecycle state of a container owned by a run.
type ContainerState string

const (
	StateCreated ContainerState = "created"
	StateRunning ContainerState = "running"
	StateStopped ContainerState = "stopped"
	StateRemoved ContainerState = "removed"
)

// ContainerHandle identifies a container created for a run.
type ContainerHandle struct {
	ID    string
	Name  string
	State ContainerState
}

// StreamType tags the origin of a log chunk.
type StreamType int

const (
	StreamStdin StreamType = iota
	StreamStdout
	StreamStderr
)

func (s StreamType) String() string {
	switch s {
	case StreamStdin:
		return "stdin"
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// LogChunk is one payload read from a container's combined output.
type LogChunk struct {
	Stream StreamType
	Data   []byte
}

// LogOptions selects what a log stream carries.
type LogOptions struct {
	Follow bool
	Stdout bool
	Stderr bool
	// TTY must match the container's tty setting: tty output is not multiplexed.
	TTY bool
}

// LogStream is a lazy sequence of log chunks. Next returns io.EOF once the
// remote side closes the stream. Close unblocks a pending Next. A chunk's
// Data may be reused by the following Next, so consumers copy what they keep.
type LogStream interface {
	Next() (LogChunk, error)
	Close() error
}

// ProgressEvent is a single image pull progress message.
type ProgressEvent struct {
	ID       string
	Status   string
	Progress string
}

// ProgressObserver receives pull progress. It may be nil.
type ProgressObserver func(ProgressEvent)

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force bool
}

// ContainerRuntime defines the contract for container operations.
type ContainerRuntime interface {
	PullImage(ctx context.Context, ref string, observer ProgressObserver) error
	ImageExists(ctx context.Context, ref string) (bool, error)
	CreateContainer(ctx context.Context, cfg RunConfiguration) (CreateResult, error)
	StartContainer(ctx context.Context, id string) error
	StreamLogs(ctx context.Context, id string, opts LogOptions) (LogStream, error)
	WaitContainer(ctx context.Context, id string) (int64, error)
	RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error
}

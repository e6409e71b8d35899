package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dazzle/pkg/runtime"
)

type warningPrinter interface {
	PrintWarning(message string)
}

// Launcher creates and starts build containers.
type Launcher struct {
	containerRuntime runtime.ContainerRuntime
	console          warningPrinter
}

func NewLauncher(containerRuntime runtime.ContainerRuntime, console warningPrinter) *Launcher {
	return &Launcher{
		containerRuntime: containerRuntime,
		console:          console,
	}
}

// Launch creates a container from cfg and starts it. The returned handle is
// in StateRunning. If start fails the container is force-removed before the
// error is returned, so a failed Launch leaves nothing for the caller to clean up.
func (l *Launcher) Launch(ctx context.Context, cfg runtime.RunConfiguration) (*runtime.ContainerHandle, error) {
	created, err := l.containerRuntime.CreateContainer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	handle := &runtime.ContainerHandle{ID: created.ID, Name: cfg.Name, State: runtime.StateCreated}
	slog.Info("Container created", "containerID", created.ID, "name", cfg.Name)

	for _, warning := range created.Warnings {
		slog.Warn("Container runtime warning", "containerID", created.ID, "warning", warning)
		l.console.PrintWarning(warning)
	}

	if err := l.containerRuntime.StartContainer(ctx, handle.ID); err != nil {
		// The run context may already be done; removal must still go out.
		removeErr := l.containerRuntime.RemoveContainer(context.WithoutCancel(ctx), handle.ID, runtime.RemoveOptions{Force: true})
		if removeErr != nil && !errors.Is(removeErr, runtime.ErrNotFound) {
			slog.Error("Failed to remove container after start failure", "containerID", handle.ID, "error", removeErr)
			l.console.PrintWarning(fmt.Sprintf("failed to remove container %s after start failure: %v", handle.ID, removeErr))
		} else {
			handle.State = runtime.StateRemoved
		}
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	handle.State = runtime.StateRunning
	slog.Info("Container started", "containerID", handle.ID)
	return handle, nil
}

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"

	"dazzle/pkg/runtime"
)

// DockerRuntime implements the ContainerRuntime interface using Docker client.
// A single instance is safe to share between the streaming goroutine and the
// cleanup path; it holds no mutable state of its own.
type DockerRuntime struct {
	client *client.Client
}

var _ runtime.ContainerRuntime = (*DockerRuntime)(nil)

// NewDockerRuntime creates a new DockerRuntime instance using client.FromEnv.
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Check if Docker daemon is accessible
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w: %w", runtime.ErrRuntimeUnavailable, err)
	}

	return &DockerRuntime{
		client: dockerClient,
	}, nil
}

// Close releases the underlying client connection.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// PullImage pulls a Docker image, forwarding every progress message to observer.
func (d *DockerRuntime) PullImage(ctx context.Context, ref string, observer runtime.ProgressObserver) error {
	slog.Info("Pulling Docker image", "image", ref)

	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify("pull image "+ref, err, runtime.ErrImageNotFound)
	}
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode pull progress for %s: %w", ref, err)
		}

		if msg.Error != nil {
			if isMissingImageMessage(msg.Error.Message) {
				return fmt.Errorf("pull image %s: %w: %w", ref, runtime.ErrImageNotFound, msg.Error)
			}
			return fmt.Errorf("pull image %s: %w", ref, msg.Error)
		}

		if observer != nil {
			event := runtime.ProgressEvent{ID: msg.ID, Status: msg.Status}
			if msg.Progress != nil {
				event.Progress = msg.Progress.String()
			}
			observer(event)
		}
	}

	slog.Info("Successfully pulled Docker image", "image", ref)
	return nil
}

// ImageExists reports whether ref is present in the local image store.
func (d *DockerRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := d.client.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, classify("inspect image "+ref, err, runtime.ErrImageNotFound)
}

// CreateContainer creates (but does not start) a container from cfg.
func (d *DockerRuntime) CreateContainer(ctx context.Context, cfg runtime.RunConfiguration) (runtime.CreateResult, error) {
	slog.Info("Creating container", "image", cfg.Image, "name", cfg.Name, "command", cfg.Command)

	var mounts []mount.Mount
	for _, m := range cfg.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	containerConfig := &container.Config{
		Image:        cfg.Image,
		Cmd:          cfg.Command,
		WorkingDir:   cfg.WorkingDir,
		Labels:       cfg.Labels,
		AttachStdin:  cfg.Interactive.AttachStdin,
		AttachStdout: cfg.Interactive.AttachStdout,
		AttachStderr: cfg.Interactive.AttachStderr,
		OpenStdin:    cfg.Interactive.OpenStdin,
		StdinOnce:    cfg.Interactive.StdinOnce,
		Tty:          cfg.Interactive.TTY,
	}

	hostConfig := &container.HostConfig{
		Mounts: mounts,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, cfg.Name)
	if err != nil {
		return runtime.CreateResult{}, classify("create container", err, runtime.ErrImageNotFound)
	}

	return runtime.CreateResult{ID: resp.ID, Warnings: resp.Warnings}, nil
}

// StartContainer starts a created container.
func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return classify("start container "+shortID(id), err, runtime.ErrNotFound)
	}
	return nil
}

// StreamLogs opens the container's combined output. With Follow set the
// stream stays open until the container stops producing output or ctx ends.
func (d *DockerRuntime) StreamLogs(ctx context.Context, id string, opts runtime.LogOptions) (runtime.LogStream, error) {
	logs, err := d.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: opts.Stdout,
		ShowStderr: opts.Stderr,
		Follow:     opts.Follow,
	})
	if err != nil {
		return nil, classify("stream logs "+shortID(id), err, runtime.ErrNotFound)
	}
	return newLogStream(logs, opts.TTY), nil
}

// WaitContainer blocks until the container is no longer running and returns its exit code.
func (d *DockerRuntime) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, classify("wait container "+shortID(id), err, runtime.ErrNotFound)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("wait container %s: %s", shortID(id), status.Error.Message)
		}
		return status.StatusCode, nil
	}
}

// RemoveContainer deletes the container. With Force set a running container is killed first.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string, opts runtime.RemoveOptions) error {
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: opts.Force}); err != nil {
		return classify("remove container "+shortID(id), err, runtime.ErrNotFound)
	}
	return nil
}

// classify maps a Docker client error onto the runtime error taxonomy.
// notFound is the sentinel used when the daemon answers 404.
func classify(op string, err error, notFound error) error {
	switch {
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrRuntimeUnavailable, err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%s: %w: %w", op, notFound, err)
	case errdefs.IsInvalidParameter(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrInvalidConfig, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%s: %w: %w", op, runtime.ErrAlreadyRunning, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isMissingImageMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "manifest unknown")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

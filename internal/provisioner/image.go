package provisioner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"dazzle/internal/config"
	"dazzle/pkg/runtime"
)

type infoPrinter interface {
	PrintInfo(message string)
}

// ImageProvisioner pulls build images according to a pull policy. An image
// is provisioned at most once per ImageProvisioner.
type ImageProvisioner struct {
	containerRuntime runtime.ContainerRuntime
	policy           string
	console          infoPrinter

	mu    sync.Mutex
	ready map[string]bool
}

// NewImageProvisioner creates a provisioner. policy is one of the config.Pull* values.
func NewImageProvisioner(containerRuntime runtime.ContainerRuntime, policy string, console infoPrinter) *ImageProvisioner {
	return &ImageProvisioner{
		containerRuntime: containerRuntime,
		policy:           policy,
		console:          console,
		ready:            make(map[string]bool),
	}
}

// Ensure makes image available locally. Failures are returned unchanged in
// kind (runtime.ErrImageNotFound, runtime.ErrRuntimeUnavailable) for the
// caller to report.
func (p *ImageProvisioner) Ensure(ctx context.Context, image BuildImage) error {
	ref := image.String()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready[ref] {
		slog.Debug("Image already provisioned", "image", ref)
		return nil
	}

	switch p.policy {
	case config.PullAlways, "":
		if err := p.pull(ctx, ref); err != nil {
			return err
		}
	case config.PullMissing:
		exists, err := p.containerRuntime.ImageExists(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to check for image %s: %w", ref, err)
		}
		if exists {
			slog.Info("Image present locally, skipping pull", "image", ref)
		} else if err := p.pull(ctx, ref); err != nil {
			return err
		}
	case config.PullNever:
		exists, err := p.containerRuntime.ImageExists(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to check for image %s: %w", ref, err)
		}
		if !exists {
			return fmt.Errorf("image %s is not present locally and pull policy is %q: %w", ref, config.PullNever, runtime.ErrImageNotFound)
		}
	default:
		return fmt.Errorf("unknown pull policy %q", p.policy)
	}

	p.ready[ref] = true
	return nil
}

func (p *ImageProvisioner) pull(ctx context.Context, ref string) error {
	p.console.PrintInfo(fmt.Sprintf("Pulling %s", ref))

	if err := p.containerRuntime.PullImage(ctx, ref, newProgressPrinter(p.console)); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// newProgressPrinter prints each layer's status once per change, leaving out
// the byte counters the daemon repeats while downloading.
func newProgressPrinter(console infoPrinter) runtime.ProgressObserver {
	last := make(map[string]string)
	return func(ev runtime.ProgressEvent) {
		if ev.Status == "" || last[ev.ID] == ev.Status {
			return
		}
		last[ev.ID] = ev.Status

		if ev.ID == "" {
			console.PrintInfo(ev.Status)
			return
		}
		console.PrintInfo(fmt.Sprintf("%s: %s", ev.ID, ev.Status))
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dzerrors "dazzle/internal/errors"
	"dazzle/internal/provisioner"
	"dazzle/internal/runconfig"
	"dazzle/internal/workspace"
	"dazzle/pkg/runtime"
)

// Options configures a Runner.
type Options struct {
	Image     provisioner.BuildImage
	Build     runconfig.Options
	Workspace workspace.Workspace

	// ExitWaitTimeout bounds how long a naturally ended run waits for the
	// container's exit code. Zero skips the wait and reports success.
	ExitWaitTimeout time.Duration
	// RemoveTimeout bounds the forced removal call.
	RemoveTimeout time.Duration
	// StreamGrace is how long cleanup waits for a cancelled streamer to
	// return before abandoning it.
	StreamGrace time.Duration
}

// Dependencies are the collaborators of a Runner. Terminal and Warner may be nil.
type Dependencies struct {
	Runtime     runtime.ContainerRuntime
	Provisioner provisioner.Provisioner
	Launcher    ContainerLauncher
	Streamer    LogStreamer
	Watcher     TerminationWatcher
	Terminal    TerminalController
	Warner      Warner
}

// Runner runs one build command in a throwaway container. It provisions the
// image, launches the container, races the log stream against a termination
// request and then force-removes the container whichever side won.
type Runner struct {
	deps     Dependencies
	opts     Options
	newRunID func() string
	state    *runState
}

func NewRunner(deps Dependencies, opts Options) *Runner {
	return &Runner{
		deps:     deps,
		opts:     opts,
		newRunID: uuid.NewString,
	}
}

// Run executes args as the container command. A non-nil error means the run
// failed before a container was running; everything after launch is reported
// through the Warner and reflected in the Outcome instead.
func (r *Runner) Run(ctx context.Context, args []string) (Outcome, error) {
	runID := r.newRunID()
	r.state = newRunState(runID)
	outcome := Outcome{RunID: runID}

	slog.Info("Starting dazzle run", "runId", runID, "image", r.opts.Image.String(), "args", args)
	defer func() {
		if !r.state.isTerminal() {
			slog.Error("Run left unfinished", "runId", runID, "phase", r.state.Phase)
		}
		slog.Info("Dazzle run finished", "runId", runID, "phase", r.state.Phase, "reason", outcome.Reason, "exitStatus", outcome.ExitStatus())
	}()

	// Provisioning is the only phase a termination request may interrupt
	// directly; there is nothing to clean up yet.
	provisionCtx, cancelProvision := context.WithCancel(ctx)
	stopWatch := r.cancelOnTermination(provisionCtx, cancelProvision)
	r.mustAdvance(PhaseProvisioning)
	err := r.deps.Provisioner.Ensure(provisionCtx, r.opts.Image)
	stopWatch()
	cancelProvision()
	if err != nil {
		if r.terminated() {
			r.mustAdvance(PhaseDone)
			outcome.Reason = ReasonTerminated
			outcome.Signal = r.deps.Watcher.Signal()
			return outcome, nil
		}
		r.mustAdvance(PhaseFailed)
		cause, suggestion := describe(err)
		return outcome, dzerrors.NewProvisionError(
			fmt.Sprintf("provision: failed to provision build image %s", r.opts.Image), cause, suggestion, err)
	}

	r.mustAdvance(PhaseLaunching)
	cfg := r.buildConfig(runID, args)
	// Create and start run to completion even if a signal arrives meanwhile:
	// abandoning them midway could leave a container nobody removes.
	handle, err := r.deps.Launcher.Launch(context.WithoutCancel(ctx), cfg)
	if err != nil {
		r.mustAdvance(PhaseFailed)
		cause, suggestion := describe(err)
		return outcome, dzerrors.NewLaunchError(
			fmt.Sprintf("launch: failed to launch build container from %s", cfg.Image), cause, suggestion, err)
	}
	outcome.ContainerID = handle.ID

	r.mustAdvance(PhaseStreaming)
	restore := r.enterRawMode()
	streamDone, cancelStream := r.startStreaming(ctx, handle)
	streamReturned := r.race(ctx, streamDone, &outcome)
	cancelStream()
	restore()

	r.mustAdvance(PhaseCleaningUp)
	if outcome.Reason == ReasonCompleted {
		r.collectExitCode(ctx, handle, &outcome)
	}
	outcome.CleanupErr = r.removeContainer(ctx, handle)
	if !streamReturned {
		r.awaitStreamer(streamDone)
	}

	r.mustAdvance(PhaseDone)
	return outcome, nil
}

func (r *Runner) buildConfig(runID string, args []string) runtime.RunConfiguration {
	opts := r.opts.Build
	opts.Image = r.opts.Image.String()
	opts.RunID = runID

	src := runconfig.Source{
		HostDir:    r.opts.Workspace.HostRoot,
		WorkingDir: r.opts.Workspace.ContainerDir(opts.WorkspacePath),
	}
	return runconfig.Build(src, args, opts)
}

func (r *Runner) startStreaming(ctx context.Context, handle *runtime.ContainerHandle) (<-chan error, context.CancelFunc) {
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- r.deps.Streamer.Stream(streamCtx, handle.ID)
	}()
	return done, cancel
}

// race waits for the first of: the log stream ending, a termination request,
// or ctx ending. It reports whether the streamer goroutine has returned.
func (r *Runner) race(ctx context.Context, streamDone <-chan error, outcome *Outcome) bool {
	select {
	case err := <-streamDone:
		if ctx.Err() != nil {
			outcome.Reason = ReasonCancelled
			return true
		}
		outcome.Reason = ReasonCompleted
		if err != nil && !errors.Is(err, context.Canceled) {
			r.warn(dzerrors.NewStreamError("stream", "", "", err))
		}
		return true
	case <-r.deps.Watcher.Done():
		outcome.Reason = ReasonTerminated
		outcome.Signal = r.deps.Watcher.Signal()
		slog.Info("Termination requested, cleaning up", "runId", outcome.RunID, "signal", outcome.Signal)
		return false
	case <-ctx.Done():
		outcome.Reason = ReasonCancelled
		return false
	}
}

func (r *Runner) enterRawMode() func() {
	if r.deps.Terminal == nil {
		return func() {}
	}
	restore, err := r.deps.Terminal.Enter(func() {
		r.deps.Watcher.Trigger(interruptSignal)
	})
	if err != nil {
		r.warn(fmt.Errorf("terminal: %w", err))
	}
	if restore == nil {
		return func() {}
	}
	return restore
}

func (r *Runner) collectExitCode(ctx context.Context, handle *runtime.ContainerHandle, outcome *Outcome) {
	if r.opts.ExitWaitTimeout <= 0 {
		return
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ExitWaitTimeout)
	defer cancel()

	code, err := r.deps.Runtime.WaitContainer(waitCtx, handle.ID)
	if err != nil {
		r.warn(dzerrors.NewCleanupError("cleanup: could not read the build exit code", "", "", err))
		outcome.ExitCode = 1
		return
	}
	handle.State = runtime.StateStopped
	outcome.ExitCode = int(code)
}

// removeContainer issues the single forced removal for handle. A container
// that is already gone counts as removed.
func (r *Runner) removeContainer(ctx context.Context, handle *runtime.ContainerHandle) error {
	removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RemoveTimeout)
	defer cancel()

	err := r.deps.Runtime.RemoveContainer(removeCtx, handle.ID, runtime.RemoveOptions{Force: true})
	if err != nil && !errors.Is(err, runtime.ErrNotFound) {
		r.warn(dzerrors.NewCleanupError(
			fmt.Sprintf("cleanup: failed to remove container %s", handle.ID), "", "", err))
		return err
	}

	handle.State = runtime.StateRemoved
	slog.Info("Container removed", "containerID", handle.ID)
	return nil
}

func (r *Runner) awaitStreamer(streamDone <-chan error) {
	select {
	case <-streamDone:
	case <-time.After(r.opts.StreamGrace):
		slog.Warn("Log streamer did not stop within grace period, abandoning it", "grace", r.opts.StreamGrace)
	}
}

// cancelOnTermination cancels ctx when the watcher fires. The returned func
// stops watching.
func (r *Runner) cancelOnTermination(ctx context.Context, cancel context.CancelFunc) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-r.deps.Watcher.Done():
			cancel()
		case <-ctx.Done():
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func (r *Runner) terminated() bool {
	select {
	case <-r.deps.Watcher.Done():
		return true
	default:
		return false
	}
}

func (r *Runner) mustAdvance(to Phase) {
	if err := r.state.advance(to); err != nil {
		panic(err)
	}
}

func (r *Runner) warn(err error) {
	if r.deps.Warner != nil {
		r.deps.Warner.Warn(err)
		return
	}
	slog.Warn("dazzle warning", "error", err)
}

// describe turns a runtime error into an operator-facing cause and suggestion.
func describe(err error) (string, string) {
	switch {
	case errors.Is(err, runtime.ErrRuntimeUnavailable):
		return "The Docker daemon could not be reached",
			"Start Docker or point DOCKER_HOST at a running daemon"
	case errors.Is(err, runtime.ErrImageNotFound):
		return "The build image does not exist locally or in its registry",
			"Check the image setting in dazzle.yaml or DAZZLE_IMAGE"
	case errors.Is(err, runtime.ErrInvalidConfig):
		return "The container runtime rejected the container configuration",
			"Check workspace_path, the scratch paths and the arguments passed to dazzle"
	case errors.Is(err, runtime.ErrAlreadyRunning):
		return "The container was already running when it was started", ""
	case errors.Is(err, runtime.ErrNotFound):
		return "The container disappeared before it could be started", ""
	default:
		return "", ""
	}
}

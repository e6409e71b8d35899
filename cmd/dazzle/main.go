package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dazzle/internal/app"
	"dazzle/internal/config"
	dzerrors "dazzle/internal/errors"
	"dazzle/internal/launcher"
	"dazzle/internal/logstream"
	"dazzle/internal/provisioner"
	"dazzle/internal/runconfig"
	dockerruntime "dazzle/internal/runtime"
	"dazzle/internal/terminal"
	"dazzle/internal/ui"
	"dazzle/internal/watcher"
	"dazzle/internal/workspace"
)

// version is set at build time via ldflags
var version = "dev"

func newRootCmd(status *int) *cobra.Command {
	return &cobra.Command{
		Use:   "dazzle [build-tool args...]",
		Short: "Run a build tool inside a throwaway Docker container",
		Long: `Dazzle runs the build tool from a container image against the current
directory. The directory is mounted as the build workspace, output is streamed
back, and the container is force-removed when the build ends or dazzle is
interrupted.

Every argument is passed to the build tool unchanged; dazzle itself is
configured through dazzle.yaml and DAZZLE_* environment variables. For the
same reason --version reaches the build tool; dazzle logs its own version at
log_level debug.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(cmd.Context(), args)
			*status = code
			return err
		},
	}
}

func run(ctx context.Context, args []string) (int, error) {
	cfg, err := config.Load(os.Getenv("DAZZLE_CONFIG"))
	if err != nil {
		return 1, dzerrors.NewConfigError("config: failed to load configuration",
			"dazzle.yaml or a DAZZLE_* variable holds an invalid value",
			"Fix the reported field or remove it to use the default", err)
	}
	// Records may be written while the terminal is raw.
	slog.SetDefault(slog.New(slog.NewTextHandler(ui.NewRawSafeWriter(os.Stderr), &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.Debug("dazzle starting", "version", version)

	image, err := provisioner.ParseImage(cfg.Image)
	if err != nil {
		return 1, dzerrors.NewConfigError("config: invalid build image",
			fmt.Sprintf("%q is not a valid image reference", cfg.Image),
			"Set image to a reference such as l.gcr.io/google/bazel:latest", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return 1, dzerrors.NewFileSystemError("workspace: failed to determine the current directory", "", "", err)
	}
	ws, err := workspace.Resolve(cwd, cfg.DiscoverRoot)
	if err != nil {
		return 1, dzerrors.NewFileSystemError("workspace: failed to resolve the build workspace", "", "", err)
	}
	if err := workspace.EnsureScratchDir(cfg.ScratchDir); err != nil {
		return 1, dzerrors.NewFileSystemError("workspace: failed to prepare the scratch directory",
			fmt.Sprintf("%s could not be created", cfg.ScratchDir),
			"Check permissions or point scratch_dir somewhere writable", err)
	}

	docker, err := dockerruntime.NewDockerRuntime(ctx)
	if err != nil {
		return 1, dzerrors.NewRuntimeUnavailableError("runtime: failed to connect to Docker",
			"The Docker daemon could not be reached",
			"Start Docker or point DOCKER_HOST at a running daemon", err)
	}
	defer docker.Close()

	console := ui.NewConsole()

	var warner app.Warner
	if handler, err := dzerrors.GetDefaultHandler(); err == nil && handler != nil {
		warner = handler
	} else {
		slog.Warn("Error log unavailable, warnings go to the console log only", "error", err)
	}

	w := watcher.New()
	w.Start()
	defer w.Stop()

	var term app.TerminalController
	if cfg.RawTerminal && cfg.TTY {
		term = terminal.NewController(os.Stdin)
	}

	runner := app.NewRunner(app.Dependencies{
		Runtime:     docker,
		Provisioner: provisioner.NewImageProvisioner(docker, cfg.PullPolicy, console),
		Launcher:    launcher.NewLauncher(docker, console),
		Streamer:    logstream.NewStreamer(docker, os.Stdout, os.Stderr, warner, cfg.TTY),
		Watcher:     w,
		Terminal:    term,
		Warner:      warner,
	}, app.Options{
		Image: image,
		Build: runconfig.Options{
			WorkspacePath:    cfg.WorkspacePath,
			ScratchDir:       cfg.ScratchDir,
			ScratchMountPath: cfg.ScratchMountPath,
			CacheFlag:        cfg.CacheFlag,
			TTY:              cfg.TTY,
		},
		Workspace:       ws,
		ExitWaitTimeout: cfg.ExitWaitTimeout,
		RemoveTimeout:   cfg.RemoveTimeout,
		StreamGrace:     cfg.StreamGrace,
	})

	outcome, err := runner.Run(ctx, args)
	if err != nil {
		return 1, err
	}
	return outcome.ExitStatus(), nil
}

func execute(args []string) int {
	status := 0
	cmd := newRootCmd(&status)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		dzerrors.HandleError(err)
		return 1
	}
	return status
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

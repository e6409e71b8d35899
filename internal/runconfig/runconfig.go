package runconfig

import (
	"fmt"

	"dazzle/pkg/runtime"
)

// Labels applied to every build container.
const (
	LabelManaged = "dazzle.managed"
	LabelRunID   = "dazzle.run-id"
)

// Options are the fixed, per-installation parts of a run configuration.
type Options struct {
	Image            string
	WorkspacePath    string
	ScratchDir       string
	ScratchMountPath string
	// CacheFlag is prepended to the command as CacheFlag=ScratchMountPath.
	// Empty disables it.
	CacheFlag string
	TTY       bool
	RunID     string
}

// Source is where the build runs on the host side.
type Source struct {
	// HostDir is bind-mounted at Options.WorkspacePath.
	HostDir string
	// WorkingDir is the in-container working directory. Empty means
	// Options.WorkspacePath.
	WorkingDir string
}

// Build assembles the launch specification for one run. args are passed to
// the container verbatim after the cache flag; nothing here validates them.
func Build(src Source, args []string, opts Options) runtime.RunConfiguration {
	command := make([]string, 0, len(args)+1)
	if opts.CacheFlag != "" {
		command = append(command, fmt.Sprintf("%s=%s", opts.CacheFlag, opts.ScratchMountPath))
	}
	command = append(command, args...)

	workingDir := src.WorkingDir
	if workingDir == "" {
		workingDir = opts.WorkspacePath
	}

	labels := map[string]string{LabelManaged: "true"}
	var name string
	if opts.RunID != "" {
		labels[LabelRunID] = opts.RunID
		name = ContainerName(opts.RunID)
	}

	return runtime.RunConfiguration{
		Image:      opts.Image,
		Name:       name,
		Labels:     labels,
		WorkingDir: workingDir,
		Command:    command,
		Mounts: []runtime.Mount{
			{Source: src.HostDir, Target: opts.WorkspacePath},
			{Source: opts.ScratchDir, Target: opts.ScratchMountPath},
		},
		Interactive: runtime.InteractiveFlags{
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			OpenStdin:    true,
			StdinOnce:    true,
			TTY:          opts.TTY,
		},
	}
}

// ContainerName derives the container name from a run ID: "dazzle-" plus the
// first 12 hex digits.
func ContainerName(runID string) string {
	hex := make([]byte, 0, 12)
	for i := 0; i < len(runID) && len(hex) < 12; i++ {
		if runID[i] != '-' {
			hex = append(hex, runID[i])
		}
	}
	return "dazzle-" + string(hex)
}

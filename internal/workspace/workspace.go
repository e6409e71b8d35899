package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"dazzle/internal/paths"
)

// Workspace describes which host directory is bind-mounted as the build
// workspace and where inside it the build command runs.
type Workspace struct {
	// HostRoot is the host directory mounted at the container workspace path.
	HostRoot string
	// Subdir is the slash-separated path of the working directory below
	// HostRoot, or "" when the working directory is HostRoot itself.
	Subdir string
}

// ContainerDir returns the in-container working directory for a workspace
// mounted at mountPath.
func (w Workspace) ContainerDir(mountPath string) string {
	if w.Subdir == "" {
		return mountPath
	}
	return path.Join(mountPath, w.Subdir)
}

// Resolve decides what to mount for a run started in cwd. With discoverRoot
// set and cwd inside a git work tree, the repository root is mounted and the
// command runs in the matching subdirectory. Otherwise cwd itself is mounted.
func Resolve(cwd string, discoverRoot bool) (Workspace, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return Workspace{}, fmt.Errorf("failed to get absolute path for working directory: %w", err)
	}

	if !discoverRoot {
		return Workspace{HostRoot: abs}, nil
	}

	root, err := repositoryRoot(abs)
	if err != nil {
		slog.Info("No git work tree found, mounting working directory", "cwd", abs, "reason", err)
		return Workspace{HostRoot: abs}, nil
	}

	rel, err := relativeTo(root, abs)
	if err != nil {
		slog.Warn("Working directory is outside the repository root", "cwd", abs, "root", root, "error", err)
		return Workspace{HostRoot: abs}, nil
	}

	slog.Info("Discovered repository root", "root", root, "subdir", rel)
	return Workspace{HostRoot: root, Subdir: rel}, nil
}

func repositoryRoot(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("not inside a git repository: %w", err)
		}
		return "", fmt.Errorf("failed to open git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("repository has no work tree: %w", err)
	}

	return worktree.Filesystem.Root(), nil
}

// relativeTo returns dir relative to root in slash form, resolving symlinks
// on both sides so that e.g. /tmp and /private/tmp compare equal.
func relativeTo(root, dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not below %s", dir, root)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// EnsureScratchDir creates the host scratch directory mounted for build
// caches. It must exist before the container is created.
func EnsureScratchDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("scratch directory path is empty")
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("scratch path exists and is not a directory: %s", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat scratch directory: %w", err)
	}

	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	slog.Info("Created scratch directory", "path", dir)
	return nil
}

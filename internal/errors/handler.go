package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dazzle/internal/paths"
	"dazzle/internal/ui"
)

// ErrorHandler records errors as JSON lines in the log file and prints the
// operator-facing form to the console.
type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	logFile *os.File
}

func NewErrorHandler() (*ErrorHandler, error) {
	return NewErrorHandlerWithConsole(ui.NewConsole())
}

func NewErrorHandlerWithConsole(console *ui.Console) (*ErrorHandler, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: console,
		logFile: logFile,
	}, nil
}

// Close releases the log file.
func (h *ErrorHandler) Close() error {
	if h.logFile == nil {
		return nil
	}
	return h.logFile.Close()
}

// createLogDirectoryWithFallback creates the log directory with fallback to current directory
func createLogDirectoryWithFallback() (string, bool, error) {
	logDir := paths.LogDir()
	err := os.MkdirAll(logDir, paths.LogDirMode)
	if err == nil {
		// Check if we can write to the directory
		testFile := filepath.Join(logDir, ".test_write")
		f, testErr := os.Create(testFile)
		if testErr == nil {
			if err := f.Close(); err != nil {
				slog.Warn("Failed to close test file", "path", testFile, "error", err)
			}
			if err := os.Remove(testFile); err != nil {
				slog.Warn("Failed to remove test file", "path", testFile, "error", err)
			}
			return logDir, false, nil
		}
		err = testErr
	}

	// Fallback to current directory
	currentDir, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", true, fmt.Errorf("cannot determine current directory for fallback logging: %w", cwdErr)
	}

	fmt.Fprintf(os.Stderr, "Warning: Cannot access standard log directory %s: %v. Falling back to current directory for logging.\n", logDir, err)

	return currentDir, true, nil
}

// rotateLogFile rotates log files when size limit is exceeded
func rotateLogFile(logPath string) error {
	const maxFiles = 5

	// Rotate existing files (.4 -> .5, .3 -> .4, etc.)
	for i := maxFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)

		if i == maxFiles-1 {
			// Remove the oldest file
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Remove(oldPath); err != nil {
					slog.Warn("Failed to remove old log file", "path", oldPath, "error", err)
				}
			}
		} else {
			// Rotate file
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Rename(oldPath, newPath); err != nil {
					slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
				}
			}
		}
	}

	// Move current log to .1
	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}

	return nil
}

// checkLogRotation checks if log rotation is needed and performs it
func checkLogRotation(logPath string) error {
	const maxSizeBytes = 10 * 1024 * 1024 // 10MB

	info, err := os.Stat(logPath)
	if err != nil {
		// File doesn't exist or other error, no rotation needed
		return nil
	}

	if info.Size() >= maxSizeBytes {
		return rotateLogFile(logPath)
	}

	return nil
}

func createLogFile() (*os.File, error) {
	logDir, _, err := createLogDirectoryWithFallback()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := filepath.Base(paths.LogFile())

	logPath := filepath.Join(logDir, logFileName)

	// Check if log rotation is needed before opening the file
	if err := checkLogRotation(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var dazzleErr *DazzleError
	if errors.As(err, &dazzleErr) {
		h.handleDazzleError(dazzleErr)
	} else {
		h.handleGenericError(err)
	}
}

// Warn records an error that does not end the run and prints it as a warning.
func (h *ErrorHandler) Warn(err error) {
	if err == nil {
		return
	}

	var dazzleErr *DazzleError
	if errors.As(err, &dazzleErr) {
		h.logger.Warn("dazzle warning",
			"error", dazzleErr.OriginalErr.Error(),
			"type", getErrorTypeName(dazzleErr.Type),
			"context", dazzleErr.Context,
		)
		h.console.PrintWarning(dazzleErr.Context + ": " + dazzleErr.OriginalErr.Error())
		return
	}

	h.logger.Warn("dazzle warning", "error", err.Error(), "type", "generic")
	h.console.PrintWarning(err.Error())
}

func (h *ErrorHandler) handleDazzleError(err *DazzleError) {
	h.logStructuredError(err)

	message := h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion)
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logStructuredError(err *DazzleError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.OriginalErr.Error()),
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("context", err.Context),
	}

	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "dazzle error occurred", logAttrs...)
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrProvisionFailed:
		return "provision_failed"
	case ErrLaunchFailed:
		return "launch_failed"
	case ErrStreamFailed:
		return "stream_failed"
	case ErrCleanupFailed:
		return "cleanup_failed"
	case ErrFileSystemFailed:
		return "filesystem_failed"
	case ErrRuntimeUnavailable:
		return "runtime_unavailable"
	default:
		return "unknown"
	}
}

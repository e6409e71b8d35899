package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "dazzle"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Permission mode for the log directory.
	LogDirMode os.FileMode = 0750
)

// Directory searched for dazzle.yaml after the working directory.
//
//	Linux:   $XDG_CONFIG_HOME/dazzle or ~/.config/dazzle
//	macOS:   ~/Library/Application Support/dazzle
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Directory holding the structured error log. DAZZLE_LOG_DIR overrides it.
//
//	Linux:   $XDG_STATE_HOME/dazzle or ~/.local/state/dazzle
//	macOS:   ~/Library/Application Support/dazzle
func LogDir() string {
	if dir := os.Getenv("DAZZLE_LOG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.StateHome, appName)
}

// Path of the structured error log.
func LogFile() string {
	return filepath.Join(LogDir(), "dazzle.log")
}

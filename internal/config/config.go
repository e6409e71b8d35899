package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"dazzle/internal/paths"
)

// Pull policies understood by the image provisioner.
const (
	PullAlways  = "always"
	PullMissing = "missing"
	PullNever   = "never"
)

const (
	DefaultImage            = "l.gcr.io/google/bazel:latest"
	DefaultWorkspacePath    = "/src/workspace"
	DefaultScratchDir       = "/tmp/dazzle"
	DefaultScratchMountPath = "/tmp/dazzle"
	DefaultCacheFlag        = "--output_user_root"
)

// Config holds every tunable of a dazzle run.
type Config struct {
	Image            string        `mapstructure:"image" validate:"required"`
	WorkspacePath    string        `mapstructure:"workspace_path" validate:"required,startswith=/"`
	ScratchDir       string        `mapstructure:"scratch_dir" validate:"required"`
	ScratchMountPath string        `mapstructure:"scratch_mount_path" validate:"required,startswith=/"`
	CacheFlag        string        `mapstructure:"cache_flag"`
	PullPolicy       string        `mapstructure:"pull_policy" validate:"oneof=always missing never"`
	TTY              bool          `mapstructure:"tty"`
	RawTerminal      bool          `mapstructure:"raw_terminal"`
	DiscoverRoot     bool          `mapstructure:"discover_root"`
	ExitWaitTimeout  time.Duration `mapstructure:"exit_wait_timeout" validate:"gte=0"`
	RemoveTimeout    time.Duration `mapstructure:"remove_timeout" validate:"gt=0"`
	StreamGrace      time.Duration `mapstructure:"stream_grace" validate:"gt=0"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps LogLevel to the console log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("image", DefaultImage)
	v.SetDefault("workspace_path", DefaultWorkspacePath)
	v.SetDefault("scratch_dir", DefaultScratchDir)
	v.SetDefault("scratch_mount_path", DefaultScratchMountPath)
	v.SetDefault("cache_flag", DefaultCacheFlag)
	v.SetDefault("pull_policy", PullAlways)
	v.SetDefault("tty", true)
	v.SetDefault("raw_terminal", true)
	v.SetDefault("discover_root", false)
	v.SetDefault("exit_wait_timeout", 5*time.Second)
	v.SetDefault("remove_timeout", 30*time.Second)
	v.SetDefault("stream_grace", 2*time.Second)
	v.SetDefault("log_level", "warn")
}

// Default returns the built-in configuration without consulting files or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("invalid built-in defaults: %v", err))
	}
	return &cfg
}

// Load resolves the configuration. Precedence, highest first: DAZZLE_*
// environment variables, the config file, built-in defaults. When filePath
// is empty dazzle.yaml is looked up in the working directory and then in the
// user config directory; a missing file is not an error.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DAZZLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("dazzle")
		v.AddConfigPath(".")
		v.AddConfigPath(paths.ConfigDir())
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || filePath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config - malformed value: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}

	return &cfg, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("field '%s' must be an absolute path", field)
	case "gt", "gte":
		return fmt.Sprintf("field '%s' must be a positive duration", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "intake.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/intake"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "INTAKE_"
	// DotEnvFile is loaded from the working directory before the environment is read
	DotEnvFile = ".env"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// Overridable for tests.
	homeDir string
	workDir string
	environ map[string]string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/intake/config.yaml)
// 3. Project config (intake.yaml in current or parent directories), or
//    explicitPath when non-empty
// 4. Environment variables (INTAKE_*, after loading .env)
//
// Command-line flags are applied by the caller on top of the result.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := readFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	if explicitPath != "" {
		explicit, err := readFile(explicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", explicitPath))
		config.Merge(explicit)
	} else if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if projectConfig, err := readFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if config.Storage.Dir == "" {
		config.Storage.Dir = l.defaultStateDir()
		l.logger.Debug("Using default state directory", slog.String("path", config.Storage.Dir))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overlays INTAKE_* variables. A .env file in the working directory
// fills in variables that are not already set.
func (l *Loader) applyEnv(config *Config) error {
	opts := env.Options{Prefix: EnvPrefix}

	if l.environ != nil {
		opts.Environment = l.environ
	} else {
		dotenv := filepath.Join(l.cwd(), DotEnvFile)
		if _, err := os.Stat(dotenv); err == nil {
			if err := godotenv.Load(dotenv); err != nil {
				l.logger.Warn("Failed to load .env", slog.String("path", dotenv), slog.String("error", err.Error()))
			} else {
				l.logger.Debug("Loaded .env", slog.String("path", dotenv))
			}
		}
	}

	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist. It returns the file's path and whether it was created.
func (l *Loader) EnsureUserConfig() (string, bool, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", false, fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, false, nil // Already exists
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return "", false, err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, true, nil
}

// readFile parses a YAML file without applying defaults, so merging it only
// overrides the keys it sets.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

func (l *Loader) home() string {
	if l.homeDir != "" {
		return l.homeDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func (l *Loader) cwd() string {
	if l.workDir != "" {
		return l.workDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// defaultStateDir returns $XDG_STATE_HOME/intake, ~/.local/state/intake, or
// .intake in the working directory as a last resort
func (l *Loader) defaultStateDir() string {
	if l.environ == nil {
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			return filepath.Join(xdg, "intake")
		}
	}
	if home := l.home(); home != "" {
		return filepath.Join(home, ".local", "state", "intake")
	}
	return filepath.Join(l.cwd(), ".intake")
}

// findProjectConfig searches for intake.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.cwd()
	if dir == "" {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const appName = "niri-single-output"

// Config holds the settings shared by every command. Values come from
// defaults, then the config file, then the environment; command-line
// flags are applied last by the caller. The socket is the exception:
// niri exports NIRI_SOCKET in every session, so it only fills Socket
// when the file leaves it empty.
type Config struct {
	Socket   string `yaml:"socket"`
	State    string `yaml:"state" env:"NIRI_SINGLE_OUTPUT_STATE"`
	LogLevel string `yaml:"log_level" env:"NIRI_SINGLE_OUTPUT_LOG_LEVEL"`
	// OnSwitch is a shell command run after an output switch is applied.
	OnSwitch string `yaml:"on_switch" env:"NIRI_SINGLE_OUTPUT_ON_SWITCH"`
}

// xdgDirs are the session locations used to derive default paths.
type xdgDirs struct {
	NiriSocket string `env:"NIRI_SOCKET"`
	Home       string `env:"HOME"`
	StateHome  string `env:"XDG_STATE_HOME"`
	ConfigHome string `env:"XDG_CONFIG_HOME"`
}

// ParseEnv loads environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func loadDirs() (xdgDirs, error) {
	var dirs xdgDirs
	if err := ParseEnv(&dirs); err != nil {
		return dirs, err
	}
	if dirs.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return dirs, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dirs.Home = home
	}
	return dirs, nil
}

// DefaultStatePath returns $XDG_STATE_HOME/niri/last-output, falling
// back to ~/.local/state/niri/last-output.
func DefaultStatePath() (string, error) {
	dirs, err := loadDirs()
	if err != nil {
		return "", err
	}
	base := dirs.StateHome
	if base == "" {
		base = filepath.Join(dirs.Home, ".local", "state")
	}
	return filepath.Join(base, "niri", "last-output"), nil
}

// DefaultPath returns $XDG_CONFIG_HOME/niri-single-output/config.yaml,
// falling back to ~/.config/niri-single-output/config.yaml.
func DefaultPath() (string, error) {
	dirs, err := loadDirs()
	if err != nil {
		return "", err
	}
	base := dirs.ConfigHome
	if base == "" {
		base = filepath.Join(dirs.Home, ".config")
	}
	return filepath.Join(base, appName, "config.yaml"), nil
}

// Load reads the config file at path and overlays the environment.
// With an empty path the default location is used and a missing file
// is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.Socket == "" {
		dirs, err := loadDirs()
		if err != nil {
			return nil, err
		}
		cfg.Socket = dirs.NiriSocket
	}

	if cfg.State == "" {
		statePath, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}
		cfg.State = statePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := cfg.Level(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, nil
}

// decode rejects unknown keys so typos do not go unnoticed.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("'log_level' must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
}

// Package config loads the dirwatch YAML configuration file and applies
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"dirwatch/internal/fsutil"
	"dirwatch/internal/logging"

	"gopkg.in/yaml.v3"
)

const (
	EnvLogLevel  = "DIRWATCH_LOG_LEVEL"
	EnvLogFormat = "DIRWATCH_LOG_FORMAT"
	EnvListen    = "DIRWATCH_LISTEN"
	EnvToken     = "DIRWATCH_TOKEN"
)

type Config struct {
	LogLevel       string            `yaml:"log_level"`
	LogFormat      string            `yaml:"log_format"`
	Listen         string            `yaml:"listen"`
	Token          string            `yaml:"token"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	MaxWatches     int               `yaml:"max_watches"`
	Directories    []DirectoryConfig `yaml:"directories"`
}

// DirectoryConfig is one directory to watch at startup.
type DirectoryConfig struct {
	Path   string `yaml:"path"`
	Create bool   `yaml:"create"`
	Mode   string `yaml:"mode"`
}

// FileMode returns the parsed creation mode, or 0 when unset.
func (d DirectoryConfig) FileMode() (fs.FileMode, error) {
	return fsutil.ParseMode(d.Mode)
}

func Default() Config {
	return Config{
		LogLevel: string(logging.LevelInfo),
	}
}

// ReadFile loads filename. Environment variables in the file are expanded
// when expandEnv is set.
func ReadFile(filename string, expandEnv bool) (Config, error) {
	if strings.TrimSpace(filename) == "" {
		return Default(), errors.New("config path is required")
	}
	file, err := os.Open(filename)
	if err != nil {
		return Default(), fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg, err := Parse(file, expandEnv)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default. Unknown keys are rejected.
func Parse(r io.Reader, expandEnv bool) (Config, error) {
	cfg := Default()
	buf, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if expandEnv {
		buf = []byte(os.ExpandEnv(string(buf)))
	}

	decoder := yaml.NewDecoder(bytes.NewReader(buf))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Default(), fmt.Errorf("invalid config: %w", err)
	}

	for i := range cfg.Directories {
		expanded, err := expandHome(strings.TrimSpace(cfg.Directories[i].Path))
		if err != nil {
			return cfg, err
		}
		cfg.Directories[i].Path = expanded
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = string(logging.LevelInfo)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DIRWATCH_* variables found through lookup.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(value) != "" {
		c.LogLevel = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvLogFormat); ok && strings.TrimSpace(value) != "" {
		c.LogFormat = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvListen); ok && strings.TrimSpace(value) != "" {
		c.Listen = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvToken); ok && strings.TrimSpace(value) != "" {
		c.Token = strings.TrimSpace(value)
	}
	return c
}

// Level returns the parsed log level.
func (c Config) Level() logging.Level {
	level, ok := logging.ParseLevel(c.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

// Format returns the parsed log format, text when unset or invalid.
func (c Config) Format() logging.Format {
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return logging.FormatText
	}
	return format
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("log_format: %w", err))
	}
	if c.MaxWatches < 0 {
		errs = append(errs, fmt.Errorf("max_watches: must not be negative"))
	}
	for i, dir := range c.Directories {
		if strings.TrimSpace(dir.Path) == "" {
			errs = append(errs, fmt.Errorf("directories[%d].path: required", i))
		}
		if _, err := dir.FileMode(); err != nil {
			errs = append(errs, fmt.Errorf("directories[%d].mode: %w", i, err))
		}
	}
	for i, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, fmt.Errorf("allowed_origins[%d]: empty", i))
		}
	}
	return errors.Join(errs...)
}

// expandHome resolves a leading ~ to the current user's home directory.
func expandHome(pathValue string) (string, error) {
	prefix := "~" + string(os.PathSeparator)
	if pathValue != "~" && !strings.HasPrefix(pathValue, prefix) {
		return pathValue, nil
	}

	u, err := user.Current()
	if err != nil {
		return "", err
	} else if u.HomeDir == "" {
		return "", fmt.Errorf("cannot expand path %s, no home directory available", pathValue)
	}
	if pathValue == "~" {
		return u.HomeDir, nil
	}
	return filepath.Join(u.HomeDir, strings.TrimPrefix(pathValue, prefix)), nil
}

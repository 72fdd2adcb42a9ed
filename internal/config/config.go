// Package config provides configuration management for the Minicut Agent.
// Defaults are overlaid first by an optional YAML config file, then by
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort     = 8765
	DefaultLogLevel = "info"
	DefaultDataDir  = ".minicut"

	// Environment variable names
	EnvPort       = "MINICUT_PORT"
	EnvLogLevel   = "MINICUT_LOG_LEVEL"
	EnvDataDir    = "MINICUT_DATA_DIR"
	EnvConfigFile = "MINICUT_CONFIG_FILE"
	EnvFFmpeg     = "MINICUT_FFMPEG"
	EnvFFprobe    = "MINICUT_FFPROBE"
	EnvHeadless   = "MINICUT_HEADLESS"

	// Database filename
	DBFilename = "minicut.db"

	// Backend command timeouts
	DefaultTimeoutProbe   = 15 * time.Second
	DefaultTimeoutExtract = 20 * time.Second
	DefaultTimeoutDetect  = 10 * time.Minute
	DefaultTimeoutConvert = 2 * time.Hour
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	TempDir() string
	FFmpegPath() string
	FFprobePath() string
	TimeoutProbe() time.Duration
	TimeoutExtract() time.Duration
	TimeoutDetect() time.Duration
	TimeoutConvert() time.Duration
	Headless() bool
}

// FileConfig is the YAML config file shape. Every field is optional;
// zero values leave the defaults untouched.
type FileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	FFmpeg   string `yaml:"ffmpeg"`
	FFprobe  string `yaml:"ffprobe"`
	Headless bool   `yaml:"headless"`
}

// EnvConfig reads configuration from an optional YAML file and environment
// variables, with environment variables taking precedence.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	ffmpeg   string
	ffprobe  string
	headless bool
}

// New creates a new EnvConfig with defaults, YAML file and environment
// variable overrides applied in that order.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
	}

	if path := configFilePath(); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if f := os.Getenv(EnvFFmpeg); f != "" {
		cfg.ffmpeg = f
	}
	if f := os.Getenv(EnvFFprobe); f != "" {
		cfg.ffprobe = f
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if fc.Port < 1 || fc.Port > 65535 {
			return fmt.Errorf("config file: port must be between 1 and 65535")
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if fc.FFmpeg != "" {
		c.ffmpeg = fc.FFmpeg
	}
	if fc.FFprobe != "" {
		c.ffprobe = fc.FFprobe
	}
	if fc.Headless {
		c.headless = true
	}
	return nil
}

func configFilePath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultDataDir, "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the sqlite database path
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// TempDir returns the directory for transient extracted frames
func (c *EnvConfig) TempDir() string {
	return filepath.Join(c.dataDir, "tmp")
}

// FFmpegPath returns an explicit ffmpeg binary path, or "" for auto-detect
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

// FFprobePath returns an explicit ffprobe binary path, or "" for auto-detect
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

// Headless disables the system tray
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) TimeoutProbe() time.Duration   { return DefaultTimeoutProbe }
func (c *EnvConfig) TimeoutExtract() time.Duration { return DefaultTimeoutExtract }
func (c *EnvConfig) TimeoutDetect() time.Duration  { return DefaultTimeoutDetect }
func (c *EnvConfig) TimeoutConvert() time.Duration { return DefaultTimeoutConvert }

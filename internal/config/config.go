package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"avatx/internal/explorer"
	"avatx/internal/process"
)

// ErrNoConfigs is returned when neither the settings file nor the flags name
// a test configuration.
var ErrNoConfigs = errors.New("config: no test configurations")

// Config holds all configuration for the application
type Config struct {
	// Cwd is the directory workers start in. Relative paths in the settings
	// file resolve against it.
	Cwd string `yaml:"cwd"`

	// Worker environment
	Env     map[string]string `yaml:"env"`
	EnvFile string            `yaml:"envFile"`

	// Interpreter starts the worker. Empty means this executable.
	Interpreter     string   `yaml:"interpreter"`
	InterpreterArgs []string `yaml:"interpreterArgs"`

	Configs         []ConfigFile `yaml:"configs"`
	SerialByDefault bool         `yaml:"serialByDefault"`

	Timeout      time.Duration `yaml:"timeout"`
	DebuggerPort uint16        `yaml:"debuggerPort"`

	LogLevel    string `yaml:"logLevel"`
	ResultsFile string `yaml:"resultsFile"`

	// Command flags
	Flags Flags `yaml:"-"`
}

// ConfigFile is one test configuration entry.
type ConfigFile struct {
	File      string `yaml:"file"`
	Serial    *bool  `yaml:"serial"`
	DebugSkip bool   `yaml:"debugSkip"`
}

// Flags holds command-line flags
type Flags struct {
	SettingsFile string
	Configs      []string
	Cwd          string
	DebuggerPort uint16
	Timeout      time.Duration
	Serial       bool
	Verbose      bool
	ResultsFile  string

	Filter       string
	OnlyFailed   bool
	OpenFailures bool
}

// New creates a new Config with defaults
func New() *Config {
	return &Config{
		Cwd:          DefaultCwd,
		Timeout:      DefaultTimeout,
		DebuggerPort: DefaultDebuggerPort,
		LogLevel:     DefaultLogLevel,
		ResultsFile:  DefaultResultsFile,
	}
}

// Load reads the settings file named by the flags, or DefaultSettingsFile
// when it exists, and applies the flags on top.
func Load(flags Flags) (*Config, error) {
	cfg := New()

	path := flags.SettingsFile
	if path == "" {
		base := flags.Cwd
		if base == "" {
			base = DefaultCwd
		}
		path = filepath.Join(base, DefaultSettingsFile)
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if !filepath.IsAbs(cfg.Cwd) {
			cfg.Cwd = filepath.Join(filepath.Dir(path), cfg.Cwd)
		}
	}
	cfg.Flags = flags

	// Apply flag overrides
	if flags.Cwd != "" {
		cfg.Cwd = flags.Cwd
	}
	if len(flags.Configs) > 0 {
		cfg.Configs = cfg.Configs[:0]
		for _, f := range flags.Configs {
			cfg.Configs = append(cfg.Configs, ConfigFile{File: f})
		}
	}
	if flags.DebuggerPort > 0 {
		cfg.DebuggerPort = flags.DebuggerPort
	}
	if flags.Timeout > 0 {
		cfg.Timeout = flags.Timeout
	}
	if flags.Serial {
		cfg.SerialByDefault = true
	}
	if flags.Verbose {
		cfg.LogLevel = "debug"
	}
	if flags.ResultsFile != "" {
		cfg.ResultsFile = flags.ResultsFile
	}

	if abs, err := filepath.Abs(cfg.Cwd); err == nil {
		cfg.Cwd = abs
	}
	return cfg, nil
}

// Validate checks that the configuration can start workers.
func (c *Config) Validate() error {
	if len(c.Configs) == 0 {
		return ErrNoConfigs
	}
	return nil
}

// Resolve returns path relative to the working directory, unless absolute.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Cwd, path)
}

// GetResultsPath returns the absolute path of the run results file.
func (c *Config) GetResultsPath() string {
	return c.Resolve(c.ResultsFile)
}

// WorkerEnv returns the environment of worker processes: this process's
// environment, overlaid with the env file and then the env map.
func (c *Config) WorkerEnv() (map[string]string, error) {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	if c.EnvFile != "" {
		vars, err := godotenv.Read(c.Resolve(c.EnvFile))
		if err != nil {
			return nil, fmt.Errorf("config: env file: %w", err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for k, v := range c.Env {
		env[k] = v
	}
	return env, nil
}

// WorkerCommand returns the path and arguments that start a worker.
func (c *Config) WorkerCommand() (string, []string, error) {
	path := c.Interpreter
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("config: locate executable: %w", err)
		}
		path = exe
	}
	args := append([]string(nil), c.InterpreterArgs...)
	args = append(args, WorkerCommand)
	if c.LogLevel == "debug" {
		args = append(args, "--verbose")
	}
	return path, args, nil
}

// ExplorerOptions builds the options of the coordinator.
func (c *Config) ExplorerOptions() (explorer.Options, error) {
	env, err := c.WorkerEnv()
	if err != nil {
		return explorer.Options{}, err
	}
	path, args, err := c.WorkerCommand()
	if err != nil {
		return explorer.Options{}, err
	}

	opts := explorer.Options{
		Process: process.Options{
			Dir:  c.Cwd,
			Env:  env,
			Path: path,
			Args: args,
		},
		SerialByDefault: c.SerialByDefault,
		Timeout:         c.Timeout,
		DebuggerPort:    c.DebuggerPort,
		Verbose:         c.LogLevel == "debug",
	}
	for _, f := range c.Configs {
		opts.Configs = append(opts.Configs, explorer.ConfigFile{
			File:      c.Resolve(f.File),
			Serial:    f.Serial,
			DebugSkip: f.DebugSkip,
		})
	}
	return opts, nil
}

// ConfigPaths returns the absolute paths of the test configurations.
func (c *Config) ConfigPaths() []string {
	out := make([]string, 0, len(c.Configs))
	for _, f := range c.Configs {
		out = append(out, c.Resolve(f.File))
	}
	return out
}

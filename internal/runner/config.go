// Package runner drives an external test command as a suite.Runner. Each
// test file runs in its own process whose TAP output is parsed into states.
package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTestPattern captures the title of test('title', ...) calls.
	DefaultTestPattern = `(?m)^\s*(?:test|it)(?:\.\w+)*\(\s*['"\x60](.+?)['"\x60]`
	// DefaultMatch is the argument added once per title filter.
	DefaultMatch = "--match={title}"
)

var DefaultSkipDirs = []string{"node_modules", "vendor"}

var ErrNoCommand = errors.New("runner: configuration has no command")

// Config is a test configuration file.
type Config struct {
	// Files are doublestar globs relative to the configuration's directory.
	Files []string `yaml:"files"`
	// Exclude drops files matching any of these globs.
	Exclude []string `yaml:"exclude"`
	// Command runs one test file; the file path is appended.
	Command []string `yaml:"command"`
	// Match is added once per title filter, with {title} replaced.
	Match string `yaml:"match"`
	// TestPattern's first group is a test title.
	TestPattern string `yaml:"testPattern"`
	// DebugArgs follow Command[0] in debug runs, with {port} replaced.
	DebugArgs []string `yaml:"debugArgs"`
	// Concurrency bounds the processes of one run. Debug runs use one.
	Concurrency int               `yaml:"concurrency"`
	Env         map[string]string `yaml:"env"`
	SkipDirs    []string          `yaml:"skipDirs"`

	// Dir is the directory of the configuration file.
	Dir     string `yaml:"-"`
	pattern *regexp.Regexp
}

// LoadConfig reads and validates the configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("runner: parse config %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("runner: resolve config path: %w", err)
	}
	cfg.Dir = filepath.Dir(abs)
	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("runner: config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if len(c.Command) == 0 {
		return ErrNoCommand
	}
	if len(c.Files) == 0 {
		c.Files = []string{"**/*.test.js", "test/**/*.js"}
	}
	if c.Match == "" {
		c.Match = DefaultMatch
	}
	if c.TestPattern == "" {
		c.TestPattern = DefaultTestPattern
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.SkipDirs == nil {
		c.SkipDirs = DefaultSkipDirs
	}
	pattern, err := regexp.Compile(c.TestPattern)
	if err != nil {
		return fmt.Errorf("invalid testPattern: %w", err)
	}
	if pattern.NumSubexp() < 1 {
		return fmt.Errorf("testPattern %q has no capture group", c.TestPattern)
	}
	c.pattern = pattern
	return nil
}

// argv builds the command line for one file.
func (c *Config) argv(file string, titles []string, debugPort uint16, debug bool) []string {
	args := []string{c.Command[0]}
	if debug {
		port := strconv.Itoa(int(debugPort))
		for _, a := range c.DebugArgs {
			args = append(args, strings.ReplaceAll(a, "{port}", port))
		}
	}
	args = append(args, c.Command[1:]...)
	for _, t := range titles {
		args = append(args, strings.ReplaceAll(c.Match, "{title}", t))
	}
	return append(args, file)
}

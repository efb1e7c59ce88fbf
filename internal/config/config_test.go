package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultSettingsFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `
configs:
  - file: ava.config.js
    serial: true
  - file: /abs/unit.config.js
    debugSkip: true
serialByDefault: false
timeout: 3s
debuggerPort: 9300
env:
  NODE_ENV: test
`)

	tests := []struct {
		name  string
		flags Flags
		check func(t *testing.T, cfg *Config)
	}{
		{
			name:  "settings file in cwd",
			flags: Flags{Cwd: dir},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, dir, cfg.Cwd)
				require.Len(t, cfg.Configs, 2)
				require.NotNil(t, cfg.Configs[0].Serial)
				assert.True(t, *cfg.Configs[0].Serial)
				assert.True(t, cfg.Configs[1].DebugSkip)
				assert.Equal(t, 3*time.Second, cfg.Timeout)
				assert.Equal(t, uint16(9300), cfg.DebuggerPort)
				assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
				assert.Equal(t, []string{filepath.Join(dir, "ava.config.js"), "/abs/unit.config.js"}, cfg.ConfigPaths())
				assert.Equal(t, filepath.Join(dir, DefaultResultsFile), cfg.GetResultsPath())
			},
		},
		{
			name: "flags override",
			flags: Flags{
				Cwd:          dir,
				Configs:      []string{"other.config.js"},
				DebuggerPort: 1234,
				Timeout:      time.Minute,
				Serial:       true,
				Verbose:      true,
				ResultsFile:  "out.json",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []ConfigFile{{File: "other.config.js"}}, cfg.Configs)
				assert.Equal(t, uint16(1234), cfg.DebuggerPort)
				assert.Equal(t, time.Minute, cfg.Timeout)
				assert.True(t, cfg.SerialByDefault)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, filepath.Join(dir, "out.json"), cfg.GetResultsPath())
			},
		},
		{
			name:  "explicit settings file",
			flags: Flags{SettingsFile: filepath.Join(dir, DefaultSettingsFile)},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, dir, cfg.Cwd, "cwd resolves against the settings file")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.flags)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("no configurations", func(t *testing.T) {
		cfg, err := Load(Flags{Cwd: t.TempDir()})
		require.NoError(t, err)
		assert.ErrorIs(t, cfg.Validate(), ErrNoConfigs)
	})

	t.Run("missing settings file", func(t *testing.T) {
		_, err := Load(Flags{SettingsFile: filepath.Join(t.TempDir(), "nope.yaml")})
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := writeSettings(t, dir, "configs: [\n")
		_, err := Load(Flags{SettingsFile: path})
		assert.ErrorContains(t, err, "parse")
	})
}

func TestConfig_WorkerEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FROM_FILE=1\nSHARED=file\n"), 0o644))
	t.Setenv("AVATX_INHERITED", "yes")

	cfg := New()
	cfg.Cwd = dir
	cfg.EnvFile = ".env"
	cfg.Env = map[string]string{"SHARED": "map"}

	env, err := cfg.WorkerEnv()
	require.NoError(t, err)
	assert.Equal(t, "yes", env["AVATX_INHERITED"])
	assert.Equal(t, "1", env["FROM_FILE"])
	assert.Equal(t, "map", env["SHARED"], "the env map wins over the env file")

	cfg.EnvFile = "missing.env"
	_, err = cfg.WorkerEnv()
	assert.Error(t, err)
}

func TestConfig_ExplorerOptions(t *testing.T) {
	serial := true
	cfg := New()
	cfg.Cwd = "/repo"
	cfg.Interpreter = "/usr/local/bin/avatx"
	cfg.InterpreterArgs = []string{"--settings=/repo/avatx.yaml"}
	cfg.LogLevel = "debug"
	cfg.Configs = []ConfigFile{{File: "ava.config.js", Serial: &serial}, {File: "unit.config.js", DebugSkip: true}}

	opts, err := cfg.ExplorerOptions()
	require.NoError(t, err)
	assert.Equal(t, "/repo", opts.Process.Dir)
	assert.Equal(t, "/usr/local/bin/avatx", opts.Process.Path)
	assert.Equal(t, []string{"--settings=/repo/avatx.yaml", WorkerCommand, "--verbose"}, opts.Process.Args)
	assert.True(t, opts.Verbose)
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, uint16(DefaultDebuggerPort), opts.DebuggerPort)
	require.Len(t, opts.Configs, 2)
	assert.Equal(t, "/repo/ava.config.js", opts.Configs[0].File)
	assert.Equal(t, &serial, opts.Configs[0].Serial)
	assert.True(t, opts.Configs[1].DebugSkip)
}

func TestConfig_WorkerCommandDefaultsToExecutable(t *testing.T) {
	path, args, err := New().WorkerCommand()
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, exe, path)
	assert.Equal(t, []string{WorkerCommand}, args)
}

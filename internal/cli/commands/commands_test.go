package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/cli"
	"avatx/internal/config"
	"avatx/internal/domain"
	"avatx/internal/process"
	"avatx/internal/process/processtest"
	"avatx/internal/suite/suitetest"
	"avatx/internal/worker"
)

func init() {
	color.NoColor = true
}

// harness runs CLI invocations against one directory and one fake runner.
// Each invocation gets a fresh command tree, as a new process would.
type harness struct {
	spawner process.Spawner
	out     *bytes.Buffer
	runner  *suitetest.Runner
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	runner := &suitetest.Runner{
		Configs: map[string]map[string][]string{
			filepath.Join(dir, "ava.config.js"): {
				filepath.Join(dir, "test", "math.js"): {"adds", "subtracts"},
				filepath.Join(dir, "test", "boot.js"): {"boots"},
			},
		},
		States: map[string]domain.State{"subtracts": domain.StateFailed},
	}
	spawner := &processtest.Spawner{Run: func(ctx context.Context, _ process.Options, hs io.WriteCloser) int {
		if err := worker.New(runner).Serve(ctx, hs); err != nil {
			return 1
		}
		return 0
	}}
	return &harness{spawner: spawner, out: &bytes.Buffer{}, runner: runner, dir: dir}
}

func (h *harness) root() *cobra.Command {
	cfg := config.New()
	var flags cli.Flags
	cmds := NewCommands(cfg, h.spawner, h.out)
	cmds.Run.progress = io.Discard

	root := &cobra.Command{Use: "avatx", SilenceUsage: true, SilenceErrors: true}
	cmds.Register(root, &flags, cfg)
	return root
}

func (h *harness) execute(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	h.out.Reset()
	root := h.root()
	root.SetArgs(append([]string{args[0], "--cwd", h.dir, "--config", "ava.config.js"}, args[1:]...))
	return root.ExecuteContext(ctx)
}

func TestList(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute(t, "list"))
	out := h.out.String()
	assert.Contains(t, out, "Found 3 test(s) in 1 configuration(s)")
	assert.Contains(t, out, "└── ava.config.js")
	assert.Contains(t, out, "boot.js")
	assert.Contains(t, out, "subtracts")
}

func TestRun(t *testing.T) {
	h := newHarness(t)

	err := h.execute(t, "run")
	assert.ErrorIs(t, err, ErrTestsFailed)
	assert.Contains(t, h.out.String(), "Test Run Statistics")
	assert.Contains(t, h.out.String(), "└── subtracts")
	assert.FileExists(t, filepath.Join(h.dir, config.DefaultResultsFile))

	t.Run("list marks last failures", func(t *testing.T) {
		require.NoError(t, h.execute(t, "list"))
		assert.Contains(t, h.out.String(), "subtracts [F]")
		assert.NotContains(t, h.out.String(), "adds [F]")
	})

	t.Run("failed reruns only failures", func(t *testing.T) {
		before := len(h.runner.Runs())
		err := h.execute(t, "run", "--failed")
		assert.ErrorIs(t, err, ErrTestsFailed)
		runs := h.runner.Runs()[before:]
		require.Len(t, runs, 1)
		assert.Equal(t, []string{"subtracts"}, runs[0].Titles)
		assert.Contains(t, h.out.String(), "└── subtracts")
	})

	t.Run("runs back to back", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			assert.ErrorIs(t, h.execute(t, "run"), ErrTestsFailed)
		}
	})
}

func TestRun_Filter(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute(t, "run", "--filter", "*boot*"))
	assert.Contains(t, h.out.String(), "All tests passed")

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{filepath.Join(h.dir, "test", "boot.js")}, runs[0].Files)
	assert.Empty(t, runs[0].Titles)
}

func TestRun_NothingSelected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute(t, "run", "--filter", "nothing-matches"))
	assert.Contains(t, h.out.String(), "No tests to execute")
	assert.Empty(t, h.runner.Runs())
}

func TestDebug(t *testing.T) {
	h := newHarness(t)
	err := h.execute(t, "debug", "--port", "9300")
	assert.ErrorIs(t, err, ErrTestsFailed)

	out := h.out.String()
	assert.Contains(t, out, "Debugger waiting on 127.0.0.1:9300 (ava.config.js)")
	assert.Contains(t, out, "  ✓ adds")
	assert.Contains(t, out, "  ✗ subtracts (failed)")

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Debug)
	assert.Equal(t, uint16(9300), runs[0].Debug.Port)
}

func TestNoConfigurations(t *testing.T) {
	h := newHarness(t)
	root := h.root()
	root.SetArgs([]string{"list", "--cwd", h.dir})
	assert.ErrorIs(t, root.Execute(), config.ErrNoConfigs)
}

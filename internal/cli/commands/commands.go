package commands

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"avatx/internal/cli"
	"avatx/internal/config"
	"avatx/internal/logging"
	"avatx/internal/metrics"
	"avatx/internal/process"
	"avatx/internal/storage"
	"avatx/internal/ui"
)

// ErrTestsFailed is returned by run and debug when at least one selected
// test failed, so that the process exits non-zero.
var ErrTestsFailed = errors.New("tests failed")

// Commands holds all CLI commands
type Commands struct {
	List     *ListCommand
	Run      *RunCommand
	Debug    *DebugCommand
	Failures *FailuresCommand
	Watch    *WatchCommand
	Worker   *WorkerCommand
}

// NewCommands creates all commands with dependencies. cfg is filled in once
// the flags are parsed.
func NewCommands(cfg *config.Config, spawner process.Spawner, out io.Writer) *Commands {
	jsonStorage := storage.NewJSONStorage(cfg)
	formatter := ui.NewFormatter(cfg, out)
	viewer := ui.NewFailureViewer(jsonStorage)
	opener := &opener{config: cfg, spawner: spawner}

	return &Commands{
		List:     NewListCommand(cfg, opener, jsonStorage, formatter),
		Run:      NewRunCommand(cfg, opener, jsonStorage, formatter, viewer),
		Debug:    NewDebugCommand(cfg, opener, formatter),
		Failures: NewFailuresCommand(jsonStorage, viewer),
		Watch:    NewWatchCommand(cfg, opener, jsonStorage, formatter),
		Worker:   NewWorkerCommand(),
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.Settings, "settings", "s", "", "Settings file (default: avatx.yaml in the working directory)")
	persistent.StringSliceVarP(&flags.Configs, "config", "c", nil, "Test configuration file, repeatable (overrides the settings file)")
	persistent.StringVar(&flags.Cwd, "cwd", "", "Working directory of the workers")
	persistent.DurationVar(&flags.Timeout, "timeout", 0, "Worker handshake and reconnection timeout")
	persistent.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging, in the workers too")
	persistent.StringVar(&flags.ResultsFile, "results", "", "Run results file")
	persistent.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	// Update config with flags after parsing
	load := func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flags.ToConfigFlags())
		if err != nil {
			return err
		}
		*cfg = *loaded
		logging.Init(cfg.LogLevel, os.Stderr, true)
		serveMetrics(flags.MetricsAddr)
		return nil
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "List discovered tests",
		Long:    "Load every test configuration through a worker and print the test tree",
		Args:    cobra.NoArgs,
		RunE:    c.List.Execute,
		PreRunE: load,
	}
	rootCmd.AddCommand(listCmd)

	runCmd := &cobra.Command{
		Use:     "run [ids...]",
		Short:   "Run tests",
		Long:    "Load every test configuration and run the tests selected by ids (default: all)",
		RunE:    c.Run.Execute,
		PreRunE: load,
	}
	runCmd.Flags().StringVarP(&flags.Filter, "filter", "f", "", "Select files or tests by name pattern (supports wildcards, e.g. '*user*')")
	runCmd.Flags().BoolVar(&flags.OnlyFailed, "failed", false, "Run only tests that failed in the last run")
	runCmd.Flags().BoolVar(&flags.OpenFailures, "open-failures", false, "Open the failures viewer when the run finishes with failures")
	rootCmd.AddCommand(runCmd)

	debugCmd := &cobra.Command{
		Use:     "debug [ids...]",
		Short:   "Run tests under the debugger",
		Long:    "Run the selected tests with the debugger enabled and print where to attach",
		RunE:    c.Debug.Execute,
		PreRunE: load,
	}
	debugCmd.Flags().StringVarP(&flags.Filter, "filter", "f", "", "Select files or tests by name pattern")
	debugCmd.Flags().Uint16VarP(&flags.DebuggerPort, "port", "p", 0, "Debugger port")
	debugCmd.Flags().BoolVar(&flags.Serial, "serial", false, "Debug one file at a time unless a configuration says otherwise")
	rootCmd.AddCommand(debugCmd)

	failuresCmd := &cobra.Command{
		Use:     "failures",
		Short:   "View test failures interactively",
		Long:    "Display test failures from the last run in an interactive viewer",
		Args:    cobra.NoArgs,
		RunE:    c.Failures.Execute,
		PreRunE: load,
	}
	rootCmd.AddCommand(failuresCmd)

	watchCmd := &cobra.Command{
		Use:     "watch",
		Short:   "Re-run tests on changes",
		Long:    "Run all tests, then reload and run them again whenever a configuration or test file changes",
		Args:    cobra.NoArgs,
		RunE:    c.Watch.Execute,
		PreRunE: load,
	}
	rootCmd.AddCommand(watchCmd)

	workerCmd := &cobra.Command{
		Use:    config.WorkerCommand,
		Short:  "Start a worker (used internally)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Worker.Execute(cmd.Context(), flags.Verbose)
		},
	}
	rootCmd.AddCommand(workerCmd)
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	log := logging.For("metrics")
	go func() {
		if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
}

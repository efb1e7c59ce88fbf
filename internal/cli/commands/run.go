package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"avatx/internal/config"
	"avatx/internal/domain"
	"avatx/internal/explorer"
	"avatx/internal/storage"
	"avatx/internal/tree"
	"avatx/internal/ui"
)

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	opener    *opener
	storage   storage.Storage
	formatter *ui.Formatter
	viewer    ui.Viewer
	progress  io.Writer
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	opener *opener,
	st storage.Storage,
	formatter *ui.Formatter,
	viewer ui.Viewer,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		opener:    opener,
		storage:   st,
		formatter: formatter,
		viewer:    viewer,
		progress:  os.Stderr,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ex, root, closeFn, err := rc.opener.open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	ids, err := selectIDs(rc.config, rc.storage, root, args)
	if err != nil {
		return err
	}
	output, results, err := runAndReport(cmd.Context(), ex, root, ids, rc.storage, rc.formatter, rc.progress)
	if err != nil || output == nil {
		return err
	}
	if !anyFailed(results) {
		return nil
	}
	if rc.config.Flags.OpenFailures {
		if err := rc.viewer.View(output); err != nil {
			return err
		}
	}
	return ErrTestsFailed
}

// selectIDs returns the plan ids named by args, the filter flag and the
// failed flag. Without any of them the whole tree is selected.
func selectIDs(cfg *config.Config, st storage.Storage, root *tree.Suite, args []string) ([]string, error) {
	ids := append([]string(nil), args...)
	if cfg.Flags.Filter != "" {
		ids = append(ids, tree.Filter(root, cfg.Flags.Filter)...)
	}
	if cfg.Flags.OnlyFailed {
		output, err := st.Load()
		if err != nil {
			return nil, err
		}
		for _, f := range output.Unresolved() {
			// Ids are stable across loads as long as the test still exists.
			if _, ok := root.Find(f.ID); ok {
				ids = append(ids, f.ID)
			}
		}
	}
	if len(ids) == 0 && cfg.Flags.Filter == "" && !cfg.Flags.OnlyFailed {
		ids = []string{root.ID}
	}
	return ids, nil
}

// runAndReport runs ids with a progress bar, saves the results and prints
// the summary. A nil output means nothing was selected.
func runAndReport(
	ctx context.Context,
	ex *explorer.Explorer,
	root *tree.Suite,
	ids []string,
	st storage.Storage,
	formatter *ui.Formatter,
	progress io.Writer,
) (*domain.RunOutput, []domain.TestResult, error) {
	tests := root.Select(ids)
	if len(tests) == 0 {
		formatter.Warn("No tests to execute")
		return nil, nil, nil
	}

	bar := ui.NewProgressBar(progress, len(tests))
	col := newCollector()
	col.onState = func(_ string, state domain.State) { bar.Record(state) }
	unsubscribe := ex.Subscribe(col.handle)
	defer unsubscribe()

	start := time.Now()
	err := ex.Run(ctx, ids)
	bar.Finish()
	if err != nil {
		return nil, nil, fmt.Errorf("run: %w", err)
	}

	results := col.results(root, tests)
	if err := st.Save(results, len(root.Children), time.Since(start)); err != nil {
		return nil, nil, fmt.Errorf("failed to save test results: %w", err)
	}
	output, err := st.Load()
	if err != nil {
		return nil, nil, err
	}
	formatter.PrintSummary(output)
	return output, results, nil
}

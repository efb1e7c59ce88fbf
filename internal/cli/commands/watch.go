package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"avatx/internal/config"
	"avatx/internal/explorer"
	"avatx/internal/runner"
	"avatx/internal/storage"
	"avatx/internal/tree"
	"avatx/internal/ui"
	"avatx/internal/watch"
)

// WatchCommand handles the watch command
type WatchCommand struct {
	config    *config.Config
	opener    *opener
	storage   storage.Storage
	formatter *ui.Formatter
	progress  io.Writer
}

// NewWatchCommand creates a new WatchCommand
func NewWatchCommand(cfg *config.Config, opener *opener, st storage.Storage, formatter *ui.Formatter) *WatchCommand {
	return &WatchCommand{
		config:    cfg,
		opener:    opener,
		storage:   st,
		formatter: formatter,
		progress:  os.Stderr,
	}
}

// Execute runs the command
func (wc *WatchCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ex, root, closeFn, err := wc.opener.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	w, err := watch.New(watch.DefaultDelay, runner.DefaultSkipDirs)
	if err != nil {
		return err
	}
	for _, path := range append([]string{wc.config.Cwd}, wc.config.ConfigPaths()...) {
		if err := w.Add(path); err != nil {
			return err
		}
	}

	wc.runAll(ctx, ex, root)
	wc.formatter.Warn("Watching %s for changes (Ctrl+C to stop)", wc.config.Cwd)

	return w.Run(ctx, func(changed []string) {
		wc.formatter.Warn("Change detected: %s", wc.describe(changed))
		reloaded, err := ex.Load(ctx)
		if err != nil {
			wc.formatter.Warn("Reload failed: %v", err)
			return
		}
		root = reloaded
		wc.runAll(ctx, ex, root)
	})
}

// runAll runs the whole tree. Failures are reported, not returned, so that
// watching goes on.
func (wc *WatchCommand) runAll(ctx context.Context, ex *explorer.Explorer, root *tree.Suite) {
	if _, _, err := runAndReport(ctx, ex, root, []string{root.ID}, wc.storage, wc.formatter, wc.progress); err != nil && ctx.Err() == nil {
		wc.formatter.Warn("Run failed: %v", err)
	}
}

func (wc *WatchCommand) describe(changed []string) string {
	names := make([]string, 0, len(changed))
	for _, p := range changed {
		if rel, err := filepath.Rel(wc.config.Cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
		names = append(names, p)
	}
	return strings.Join(names, ", ")
}

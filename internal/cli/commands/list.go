package commands

import (
	"github.com/spf13/cobra"

	"avatx/internal/config"
	"avatx/internal/storage"
	"avatx/internal/ui"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	opener    *opener
	storage   storage.Storage
	formatter *ui.Formatter
}

// NewListCommand creates a new ListCommand
func NewListCommand(cfg *config.Config, opener *opener, st storage.Storage, formatter *ui.Formatter) *ListCommand {
	return &ListCommand{
		config:    cfg,
		opener:    opener,
		storage:   st,
		formatter: formatter,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	_, root, closeFn, err := lc.opener.open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if len(root.Tests()) == 0 {
		lc.formatter.Warn("No tests found")
		return nil
	}

	// Mark failures of the last run, if any.
	failed := map[string]struct{}{}
	if output, err := lc.storage.Load(); err == nil {
		for _, f := range output.Unresolved() {
			failed[f.ID] = struct{}{}
		}
	}
	lc.formatter.PrintTree(root, failed)
	return nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"avatx/internal/config"
	"avatx/internal/domain"
	"avatx/internal/explorer"
	"avatx/internal/ui"
)

// DebugCommand handles the debug command
type DebugCommand struct {
	config    *config.Config
	opener    *opener
	formatter *ui.Formatter
}

// NewDebugCommand creates a new DebugCommand
func NewDebugCommand(cfg *config.Config, opener *opener, formatter *ui.Formatter) *DebugCommand {
	return &DebugCommand{
		config:    cfg,
		opener:    opener,
		formatter: formatter,
	}
}

// Execute runs the command
func (dc *DebugCommand) Execute(cmd *cobra.Command, args []string) error {
	ex, root, closeFn, err := dc.opener.open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	ids, err := selectIDs(dc.config, nil, root, args)
	if err != nil {
		return err
	}
	tests := root.Select(ids)
	if len(tests) == 0 {
		dc.formatter.Warn("No tests to debug")
		return nil
	}
	names := labels(tests)

	col := newCollector()
	col.onState = func(id string, state domain.State) {
		if state.Final() {
			dc.formatter.PrintState(names[id], state)
		}
	}
	col.onReady = func(ev explorer.ReadyEvent) {
		label := ev.Config
		if n, ok := root.Find(ev.Config); ok {
			label = n.NodeLabel()
		}
		dc.formatter.PrintReady(label, ev.Port)
	}
	unsubscribe := ex.Subscribe(col.handle)
	defer unsubscribe()

	if err := ex.Debug(cmd.Context(), ids); err != nil {
		return fmt.Errorf("debug: %w", err)
	}

	// Configurations that skip debugging report nothing.
	if anyFailed(col.reported(root, tests)) {
		return ErrTestsFailed
	}
	return nil
}

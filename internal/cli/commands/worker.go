package commands

import (
	"context"
	"os"

	"avatx/internal/logging"
	"avatx/internal/process"
	"avatx/internal/runner"
	"avatx/internal/worker"
)

// WorkerCommand handles the hidden worker command
type WorkerCommand struct{}

// NewWorkerCommand creates a new WorkerCommand
func NewWorkerCommand() *WorkerCommand {
	return &WorkerCommand{}
}

// Execute serves one coordinator over the handshake descriptor until it
// disconnects. Logs go to stderr as JSON lines for the coordinator to relay.
func (wc *WorkerCommand) Execute(ctx context.Context, verbose bool) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	logging.Init(level, os.Stderr, false)
	return worker.New(runner.NewExec()).Serve(ctx, process.HandshakeWriter())
}

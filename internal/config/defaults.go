package config

import "time"

const (
	// DefaultSettingsFile is looked up in the working directory
	DefaultSettingsFile = "avatx.yaml"
	// DefaultCwd is the default working directory
	DefaultCwd = "."
	// DefaultTimeout bounds the worker handshake and reconnection
	DefaultTimeout = 10 * time.Second
	// DefaultDebuggerPort is the default debugger port
	DefaultDebuggerPort = 9229
	// DefaultLogLevel is the default log level
	DefaultLogLevel = "info"
	// DefaultResultsFile is the default run results file, relative to the working directory
	DefaultResultsFile = ".avatx/results.json"
	// WorkerCommand is the hidden subcommand that starts a worker
	WorkerCommand = "worker"
)

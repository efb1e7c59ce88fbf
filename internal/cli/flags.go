package cli

import (
	"time"

	"avatx/internal/config"
)

// Flags holds command-line flags
type Flags struct {
	Settings     string
	Configs      []string
	Cwd          string
	DebuggerPort uint16
	Timeout      time.Duration
	Serial       bool
	Verbose      bool
	ResultsFile  string
	MetricsAddr  string

	Filter       string
	OnlyFailed   bool
	OpenFailures bool
}

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		SettingsFile: f.Settings,
		Configs:      f.Configs,
		Cwd:          f.Cwd,
		DebuggerPort: f.DebuggerPort,
		Timeout:      f.Timeout,
		Serial:       f.Serial,
		Verbose:      f.Verbose,
		ResultsFile:  f.ResultsFile,
		Filter:       f.Filter,
		OnlyFailed:   f.OnlyFailed,
		OpenFailures: f.OpenFailures,
	}
}

package suite

import (
	"context"

	"avatx/internal/domain"
)

// Runner adapts the test framework. The suite treats it as a black box.
type Runner interface {
	// Discover lists the test files of a configuration and the tests in each.
	Discover(ctx context.Context, configFile string) (Discovery, error)
	// Run executes the selected tests, reporting state changes as they happen.
	// It returns when every selected file has finished or ctx is done.
	Run(ctx context.Context, req RunRequest, report Reporter) error
}

// Discovery is the result of a discovery pass.
type Discovery struct {
	Files []DiscoveredFile
}

// DiscoveredFile is an absolute test file path and the titles found in it.
type DiscoveredFile struct {
	Path  string
	Tests []string
}

// RunRequest selects what a Runner executes.
type RunRequest struct {
	Config string
	// Files are absolute paths. Nil runs every file of the configuration.
	Files []string
	// Titles filters tests by title. Nil runs every test of the selected files.
	Titles []string
	Debug  *DebugOptions
}

// DebugOptions make a run wait for a debugger.
type DebugOptions struct {
	Port uint16
	// Ready is called once the debuggee listens on Port and blocks until the
	// coordinator has attached.
	Ready func() error
}

// Reporter receives a state change for the test titled title in file.
type Reporter func(file, title string, state domain.State)

// Package suitetest provides an in-memory suite.Runner.
package suitetest

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"avatx/internal/domain"
	"avatx/internal/suite"
)

// ErrUnknownConfig is returned by Discover for configurations not in Configs.
var ErrUnknownConfig = errors.New("suitetest: unknown configuration")

// Runner reports a fixed state for every selected test.
type Runner struct {
	// Configs maps a configuration file to its files and their test titles.
	Configs map[string]map[string][]string
	// States overrides the reported state per title. Others pass.
	States map[string]domain.State

	mu   sync.Mutex
	runs []suite.RunRequest
}

// Discover implements suite.Runner. Files are sorted by path.
func (r *Runner) Discover(_ context.Context, configFile string) (suite.Discovery, error) {
	files, ok := r.Configs[filepath.Clean(configFile)]
	if !ok {
		return suite.Discovery{}, ErrUnknownConfig
	}
	var d suite.Discovery
	for path, tests := range files {
		d.Files = append(d.Files, suite.DiscoveredFile{Path: path, Tests: tests})
	}
	slices.SortFunc(d.Files, func(a, b suite.DiscoveredFile) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return d, nil
}

// Run implements suite.Runner.
func (r *Runner) Run(ctx context.Context, req suite.RunRequest, report suite.Reporter) error {
	r.mu.Lock()
	r.runs = append(r.runs, req)
	r.mu.Unlock()

	if req.Debug != nil && req.Debug.Ready != nil {
		if err := req.Debug.Ready(); err != nil {
			return err
		}
	}
	d, err := r.Discover(ctx, req.Config)
	if err != nil {
		return err
	}
	for _, f := range d.Files {
		if req.Files != nil && !slices.Contains(req.Files, f.Path) {
			continue
		}
		for _, title := range f.Tests {
			if req.Titles != nil && !slices.Contains(req.Titles, title) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			state, ok := r.States[title]
			if !ok {
				state = domain.StatePassed
			}
			report(f.Path, title, domain.StateRunning)
			report(f.Path, title, state)
		}
	}
	return nil
}

// Runs returns every request received so far.
func (r *Runner) Runs() []suite.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]suite.RunRequest(nil), r.runs...)
}

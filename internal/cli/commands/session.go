package commands

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"avatx/internal/config"
	"avatx/internal/domain"
	"avatx/internal/explorer"
	"avatx/internal/logging"
	"avatx/internal/process"
	"avatx/internal/tree"
)

// closeTimeout bounds how long a worker gets to exit after disconnecting.
const closeTimeout = 5 * time.Second

// opener starts explorers for the loaded configuration.
type opener struct {
	config  *config.Config
	spawner process.Spawner
}

// open starts an explorer and loads the test tree. The returned close func
// shuts the worker down.
func (o *opener) open(ctx context.Context) (*explorer.Explorer, *tree.Suite, func(), error) {
	if err := o.config.Validate(); err != nil {
		return nil, nil, nil, err
	}
	opts, err := o.config.ExplorerOptions()
	if err != nil {
		return nil, nil, nil, err
	}
	ex := explorer.New(o.spawner, opts)
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = ex.Close(ctx)
	}

	root, err := ex.Load(ctx)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return ex, root, closeFn, nil
}

// collector follows the events of one run and turns them into results.
type collector struct {
	log     zerolog.Logger
	onState func(id string, state domain.State)
	onReady func(ev explorer.ReadyEvent)

	mu        sync.Mutex
	states    map[string]domain.State
	started   map[string]time.Time
	durations map[string]time.Duration
	errs      int
}

func newCollector() *collector {
	return &collector{
		log:       logging.For("cli"),
		states:    map[string]domain.State{},
		started:   map[string]time.Time{},
		durations: map[string]time.Duration{},
	}
}

func (c *collector) handle(ev explorer.Event) {
	switch ev := ev.(type) {
	case explorer.StateEvent:
		now := time.Now()
		c.mu.Lock()
		c.states[ev.ID] = ev.State
		if ev.State == domain.StateRunning {
			c.started[ev.ID] = now
		} else if start, ok := c.started[ev.ID]; ok {
			c.durations[ev.ID] = now.Sub(start)
		}
		c.mu.Unlock()
		if c.onState != nil {
			c.onState(ev.ID, ev.State)
		}
	case explorer.ReadyEvent:
		if c.onReady != nil {
			c.onReady(ev)
		}
	case explorer.ErrorEvent:
		c.mu.Lock()
		c.errs++
		c.mu.Unlock()
		c.log.Error().Err(ev.Err).Msg("worker error")
	case explorer.ExitEvent:
		c.log.Debug().Int("code", ev.Code).Msg("worker exited")
	}
}

// results builds one result per test. Tests that never reported keep the
// running state and count as failed.
func (c *collector) results(root *tree.Suite, tests []*tree.Test) []domain.TestResult {
	configs := configFiles(root)

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TestResult, 0, len(tests))
	for _, t := range tests {
		state, ok := c.states[t.ID]
		if !ok {
			state = domain.StateRunning
		}
		out = append(out, domain.TestResult{
			ID:       t.ID,
			Title:    t.Label,
			File:     t.File,
			Config:   configs[t.ID],
			State:    state,
			Duration: c.durations[t.ID],
		})
	}
	return out
}

// reported builds results for the tests that reported at least one state.
func (c *collector) reported(root *tree.Suite, tests []*tree.Test) []domain.TestResult {
	c.mu.Lock()
	var seen []*tree.Test
	for _, t := range tests {
		if _, ok := c.states[t.ID]; ok {
			seen = append(seen, t)
		}
	}
	c.mu.Unlock()
	return c.results(root, seen)
}

// configFiles maps every test id to the file of its configuration.
func configFiles(root *tree.Suite) map[string]string {
	out := map[string]string{}
	for _, child := range root.Children {
		cfg, ok := child.(*tree.Suite)
		if !ok {
			continue
		}
		for _, t := range cfg.Tests() {
			out[t.ID] = cfg.File
		}
	}
	return out
}

// labels maps every test id to its title.
func labels(tests []*tree.Test) map[string]string {
	out := make(map[string]string, len(tests))
	for _, t := range tests {
		out[t.ID] = t.Label
	}
	return out
}

func anyFailed(results []domain.TestResult) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}

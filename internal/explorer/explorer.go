// Package explorer is the coordinator's face towards a user interface. It
// serializes control operations on a queue, keeps one worker channel alive,
// builds the test tree from discovery and republishes results as events.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"avatx/internal/channel"
	"avatx/internal/domain"
	"avatx/internal/future"
	"avatx/internal/logging"
	"avatx/internal/process"
	"avatx/internal/protocol"
	"avatx/internal/queue"
	"avatx/internal/tree"
)

var (
	// ErrWorkerDied is returned when the worker exits before it connects.
	ErrWorkerDied = errors.New("explorer: worker exited before connecting")
	// ErrEmptyPlan is returned by Run and Debug when no ids are given.
	ErrEmptyPlan = errors.New("explorer: empty plan")
	// ErrNotLoaded is published when the worker did not discover a
	// configuration it was asked to load.
	ErrNotLoaded = errors.New("explorer: configuration not loaded")
)

// ConfigFile is one test configuration handed to the worker.
type ConfigFile struct {
	File string
	// Serial overrides Options.SerialByDefault for debug runs.
	Serial *bool
	// DebugSkip leaves the configuration out of debug runs.
	DebugSkip bool
}

// Options configure an Explorer.
type Options struct {
	Process process.Options
	Configs []ConfigFile
	// SerialByDefault makes debug runs go one file at a time unless a
	// configuration says otherwise.
	SerialByDefault bool
	// Timeout bounds the worker handshake and reconnection.
	Timeout      time.Duration
	DebuggerPort uint16
	// Verbose enables debug logging in the worker.
	Verbose bool
}

// Explorer drives one worker at a time on behalf of a user interface.
type Explorer struct {
	spawner process.Spawner
	opts    Options
	log     zerolog.Logger
	queue   *queue.Queue

	mu      sync.Mutex
	ch      *channel.Channel
	builder *tree.Builder
	root    *tree.Suite
	configs map[string]string
	owners  map[string]string
	subs    map[uint64]func(Event)
	nextSub uint64
}

// New returns an Explorer. No worker is started until the first operation.
func New(spawner process.Spawner, opts Options) *Explorer {
	e := &Explorer{
		spawner: spawner,
		opts:    opts,
		log:     logging.For("explorer"),
		configs: map[string]string{},
		owners:  map[string]string{},
		subs:    map[uint64]func(Event){},
	}
	e.opts.Configs = slices.Clone(opts.Configs)
	for i := range e.opts.Configs {
		e.opts.Configs[i].File = filepath.Clean(e.opts.Configs[i].File)
	}
	e.queue = queue.New(func(err error) { e.emit(ErrorEvent{Err: err}) })
	if e.opts.Process.Stdout == nil {
		e.opts.Process.Stdout = newLineWriter(e.log, "stdout")
	}
	if e.opts.Process.Stderr == nil {
		e.opts.Process.Stderr = newLineWriter(e.log, "stderr")
	}
	return e
}

// Subscribe registers fn for every event and returns a func that removes it.
func (e *Explorer) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Root returns the tree of the last load, or nil.
func (e *Explorer) Root() *tree.Suite {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// Configs maps configuration file paths to their ids as of the last load.
func (e *Explorer) Configs() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.configs))
	for k, v := range e.configs {
		out[k] = v
	}
	return out
}

// Load discovers every configuration and returns the resulting tree.
func (e *Explorer) Load(ctx context.Context) (*tree.Suite, error) {
	var root *tree.Suite
	err := e.do(ctx, func() error {
		ch, err := e.ensure(ctx, false)
		if err != nil {
			return err
		}
		b := tree.NewBuilder()
		e.mu.Lock()
		e.builder = b
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			e.builder = nil
			e.mu.Unlock()
		}()

		if err := ch.Send(ctx, protocol.Drop{}); err != nil {
			return err
		}
		for _, c := range e.opts.Configs {
			if err := ch.Send(ctx, protocol.Load{File: c.File}); err != nil {
				return err
			}
		}

		root = b.Build()
		loaded := b.Configs()
		for _, c := range e.opts.Configs {
			if _, ok := loaded[c.File]; !ok {
				e.log.Warn().Str("config", c.File).Msg("worker did not load configuration")
				e.emit(ErrorEvent{Err: fmt.Errorf("%w: %s", ErrNotLoaded, c.File)})
			}
		}
		e.mu.Lock()
		e.root = root
		e.configs = loaded
		e.owners = owners(root)
		e.mu.Unlock()
		e.log.Debug().Int("configs", len(root.Children)).Int("tests", len(root.Tests())).Msg("tree loaded")
		e.emit(DiscoveryEvent{Root: root})
		return nil
	})
	return root, err
}

// Run executes the plan ids and returns once the worker has finished it.
func (e *Explorer) Run(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyPlan
	}
	return e.do(ctx, func() error {
		ch, err := e.ensure(ctx, true)
		if err != nil {
			return err
		}
		return ch.Send(ctx, protocol.Run{Run: ids})
	})
}

// Debug executes the plan ids with the debugger port configured. Subscribers
// receive a ReadyEvent each time a debuggee waits for them.
func (e *Explorer) Debug(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyPlan
	}
	return e.do(ctx, func() error {
		ids := e.debuggable(ids)
		if len(ids) == 0 {
			e.log.Info().Msg("nothing to debug")
			return nil
		}
		ch, err := e.ensure(ctx, true)
		if err != nil {
			return err
		}
		return ch.Send(ctx, protocol.Debug{
			Port:   e.opts.DebuggerPort,
			Run:    ids,
			Serial: e.serialPlan(),
		})
	})
}

// Cancel drops queued operations and stops the running one.
func (e *Explorer) Cancel() {
	e.queue.Clear()
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	if ch != nil && ch.Connected() {
		_ = ch.Send(context.Background(), protocol.Stop{})
	}
}

// Close shuts the worker down, killing it if ctx ends first.
func (e *Explorer) Close(ctx context.Context) error {
	e.queue.Clear()
	e.mu.Lock()
	ch := e.ch
	e.ch = nil
	e.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close(ctx)
}

// do queues task and waits for it, or for ctx.
func (e *Explorer) do(ctx context.Context, task queue.Task) error {
	h := e.queue.Add(task, queue.OnError(func(err error) {
		if !errors.Is(err, context.Canceled) {
			e.emit(ErrorEvent{Err: err})
		}
	}))
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensure returns a connected channel, spawning a worker when there is none
// or the current one died. With replay, a fresh worker is sent a load for
// every configuration so that plan ids resolve again.
func (e *Explorer) ensure(ctx context.Context, replay bool) (*channel.Channel, error) {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()

	if ch != nil && !ch.Connected() && ch.Alive() {
		// Draining: either it reconnects or it dies.
		if _, err := waitConnect(ctx, ch); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if ch != nil && ch.Connected() {
		return ch, nil
	}

	ch = channel.New(e.spawner, channel.Options{Process: e.opts.Process, Timeout: e.opts.Timeout})
	ch.Subscribe(e.relay)
	e.mu.Lock()
	e.ch = ch
	e.mu.Unlock()

	ch.Start(context.Background())
	if _, err := waitConnect(ctx, ch); err != nil {
		return nil, err
	}
	if err := ch.Send(ctx, protocol.Log{Enable: e.opts.Verbose}); err != nil {
		return nil, err
	}
	if replay {
		for _, c := range e.opts.Configs {
			if err := ch.Send(ctx, protocol.Load{File: c.File}); err != nil {
				return nil, err
			}
		}
	}
	return ch, nil
}

func waitConnect(ctx context.Context, ch *channel.Channel) (channel.Event, error) {
	ev, err := ch.Once(channel.EventConnect).Wait(ctx)
	if errors.Is(err, future.ErrCancelled) {
		return nil, ErrWorkerDied
	}
	return ev, err
}

// relay turns channel events into explorer events.
func (e *Explorer) relay(ev channel.Event) {
	switch ev := ev.(type) {
	case channel.MessageEvent:
		e.mu.Lock()
		b := e.builder
		e.mu.Unlock()

		switch m := ev.Message.(type) {
		case protocol.Prefix:
			if b != nil {
				b.PushPrefix(m)
			}
		case protocol.File:
			if b != nil {
				b.PushFile(m)
			}
		case protocol.Case:
			if b != nil {
				b.PushTest(m)
			}
		case protocol.Result:
			e.emit(StateEvent{ID: m.Test, State: m.State})
		case protocol.Done:
			e.emit(DoneEvent{ID: m.File})
		case protocol.Ready:
			e.emit(ReadyEvent{Config: m.Config, Port: m.Port})
		}
	case channel.ErrorEvent:
		e.emit(ErrorEvent{Err: ev.Err})
	case channel.ExitEvent:
		e.log.Debug().Int("code", ev.Code).Msg("worker exited")
		e.emit(ExitEvent{Code: ev.Code})
	}
}

func (e *Explorer) emit(ev Event) {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.mu.Unlock()

	if ee, ok := ev.(ErrorEvent); ok && len(fns) == 0 {
		e.log.Error().Err(ee.Err).Msg("unobserved error")
	}
	for _, fn := range fns {
		fn(ev)
	}
}

// debuggable removes the ids of configurations that skip debugging. root is
// expanded to the remaining configurations.
func (e *Explorer) debuggable(ids []string) []string {
	e.mu.Lock()
	configs, owners := e.configs, e.owners
	e.mu.Unlock()

	skip := map[string]bool{}
	var keep []string
	for _, c := range e.opts.Configs {
		id, ok := configs[c.File]
		if !ok {
			continue
		}
		if c.DebugSkip {
			skip[id] = true
		} else {
			keep = append(keep, id)
		}
	}
	if len(skip) == 0 {
		return ids
	}

	var out []string
	for _, id := range ids {
		if id == domain.RootID {
			out = append(out, keep...)
			continue
		}
		if !skip[owners[id]] {
			out = append(out, id)
		}
	}
	return slices.Compact(out)
}

// serialPlan lists the configurations whose seriality differs from the
// default, so that the worker's XOR yields each configuration's setting.
func (e *Explorer) serialPlan() protocol.SerialPlan {
	e.mu.Lock()
	configs := e.configs
	e.mu.Unlock()

	plan := protocol.SerialPlan{X: e.opts.SerialByDefault}
	for _, c := range e.opts.Configs {
		id, ok := configs[c.File]
		if !ok || c.Serial == nil {
			continue
		}
		if *c.Serial != e.opts.SerialByDefault {
			plan.List = append(plan.List, id)
		}
	}
	return plan
}

// owners maps every id below a configuration suite to that configuration.
func owners(root *tree.Suite) map[string]string {
	out := map[string]string{}
	for _, child := range root.Children {
		cfg, ok := child.(*tree.Suite)
		if !ok {
			continue
		}
		var walk func(s *tree.Suite)
		walk = func(s *tree.Suite) {
			out[s.ID] = cfg.ID
			for _, n := range s.Children {
				out[n.NodeID()] = cfg.ID
				if sub, ok := n.(*tree.Suite); ok {
					walk(sub)
				}
			}
		}
		walk(cfg)
	}
	return out
}

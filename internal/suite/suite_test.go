package suite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/domain"
	"avatx/internal/protocol"
)

type fakeRunner struct {
	discoveries map[string]Discovery
	// block, when set, holds every run until it is closed or ctx ends.
	block chan struct{}

	mu   sync.Mutex
	runs []RunRequest
}

func (r *fakeRunner) Discover(_ context.Context, configFile string) (Discovery, error) {
	d, ok := r.discoveries[configFile]
	if !ok {
		return Discovery{}, errors.New("no such config")
	}
	return d, nil
}

func (r *fakeRunner) Run(ctx context.Context, req RunRequest, report Reporter) error {
	r.mu.Lock()
	r.runs = append(r.runs, req)
	r.mu.Unlock()

	if req.Debug != nil {
		if err := req.Debug.Ready(); err != nil {
			return err
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, f := range r.discoveries[req.Config].Files {
		if req.Files != nil && !slices.Contains(req.Files, f.Path) {
			continue
		}
		seen := map[string]bool{}
		for _, title := range f.Tests {
			if seen[title] || req.Titles != nil && !slices.Contains(req.Titles, title) {
				continue
			}
			seen[title] = true
			report(f.Path, title, domain.StatePassed)
		}
	}
	return nil
}

func (r *fakeRunner) requests() []RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunRequest(nil), r.runs...)
}

type sink struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (s *sink) send(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *sink) all() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

func ofType[T protocol.Message](msgs []protocol.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

var (
	configA = filepath.FromSlash("/repo/ava.config.js")
	configB = filepath.FromSlash("/repo/unit.config.js")
	fileF0  = filepath.FromSlash("/repo/test/t0.js")
	fileF1  = filepath.FromSlash("/repo/test/t1.js")
	fileU   = filepath.FromSlash("/repo/unit/u.js")
)

func newRunner() *fakeRunner {
	return &fakeRunner{discoveries: map[string]Discovery{
		configA: {Files: []DiscoveredFile{
			{Path: fileF0, Tests: []string{"a", "b", "a"}},
			{Path: fileF1, Tests: []string{"c"}},
		}},
		configB: {Files: []DiscoveredFile{
			{Path: fileU, Tests: []string{"u"}},
		}},
	}}
}

func load(t *testing.T, s *Suite, file string) ([]protocol.Message, string) {
	t.Helper()
	out := &sink{}
	c, err := s.Load(context.Background(), file, out.send)
	require.NoError(t, err)
	return out.all(), c.ID
}

func TestSuite_LoadStreamsDiscovery(t *testing.T) {
	s := New(newRunner())
	msgs, id := load(t, s, configA)

	require.IsType(t, protocol.Prefix{}, msgs[0])
	prefix := msgs[0].(protocol.Prefix)
	assert.Equal(t, id, prefix.ID)
	assert.Equal(t, configA, prefix.File)
	assert.Equal(t, filepath.FromSlash("/repo/test"), prefix.Prefix)

	files := ofType[protocol.File](msgs)
	require.Len(t, files, 2)
	assert.Equal(t, "t0.js", files[0].File)
	assert.Equal(t, id, files[0].Config)

	cases := ofType[protocol.Case](msgs)
	require.Len(t, cases, 3, "duplicate titles are announced once")
	assert.Equal(t, files[0].ID, cases[0].File)
	assert.True(t, s.Registry().Exists(cases[0].ID))

	// Every case comes after every file.
	firstCase := slices.IndexFunc(msgs, func(m protocol.Message) bool { _, ok := m.(protocol.Case); return ok })
	assert.Equal(t, 3, firstCase)
}

func TestSuite_ReloadKeepsIDs(t *testing.T) {
	s := New(newRunner())
	first, id := load(t, s, configA)
	second, again := load(t, s, configA)

	assert.Equal(t, id, again)
	assert.Equal(t, first, second)
	assert.Len(t, s.Configs(), 1)
}

func TestSuite_LoadError(t *testing.T) {
	s := New(newRunner())
	_, err := s.Load(context.Background(), "/missing.config.js", func(protocol.Message) {})
	assert.Error(t, err)
	assert.Empty(t, s.Configs())
}

func TestResolve(t *testing.T) {
	s := New(newRunner())
	load(t, s, configA)
	c := s.Configs()[0]
	files := c.Files()
	f0, f1 := files[0], files[1]
	a, c1 := f0.Tests()[0], f1.Tests()[0]

	tests := []struct {
		name string
		ids  []string
		want Selection
		ok   bool
	}{
		{"root", []string{"root"}, Selection{All: true}, true},
		{"config", []string{c.ID}, Selection{All: true}, true},
		{"whole file", []string{f0.ID}, Selection{Files: []string{fileF0}}, true},
		{"single test", []string{a.ID}, Selection{Files: []string{fileF0}, Titles: []string{"a"}}, true},
		{"test and its file deduplicated", []string{a.ID, f0.ID}, Selection{Files: []string{fileF0}, Titles: []string{"a", "b"}}, true},
		{"mixed files", []string{f0.ID, c1.ID}, Selection{Files: []string{fileF0, fileF1}, Titles: []string{"c", "a", "b"}}, true},
		{"foreign ids", []string{"f123", "t456", "cabc"}, Selection{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(c, tt.ids)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuite_RunSendsResultsAndDonePerConfig(t *testing.T) {
	s := New(newRunner())
	_, idA := load(t, s, configA)
	_, idB := load(t, s, configB)

	out := &sink{}
	s.Run(context.Background(), out.send, "s1", []string{"root"})

	msgs := out.all()
	assert.Len(t, ofType[protocol.Result](msgs), 4)
	var done []string
	for _, d := range ofType[protocol.Done](msgs) {
		done = append(done, d.File)
	}
	assert.ElementsMatch(t, []string{idA, idB}, done)
}

func TestSuite_RunFiltersByPlan(t *testing.T) {
	r := newRunner()
	s := New(r)
	load(t, s, configA)
	load(t, s, configB)
	c := s.Configs()[0]
	a := c.Files()[0].Tests()[0]

	out := &sink{}
	s.Run(context.Background(), out.send, "s1", []string{a.ID})

	reqs := r.requests()
	require.Len(t, reqs, 1, "configurations owning nothing in the plan do not run")
	assert.Equal(t, RunRequest{Config: configA, Files: []string{fileF0}, Titles: []string{"a"}}, reqs[0])
	assert.Equal(t, []protocol.Message{
		protocol.Result{Test: a.ID, State: domain.StatePassed},
		protocol.Done{File: c.ID},
	}, out.all())
}

func TestSuite_CancelStopsRuns(t *testing.T) {
	r := newRunner()
	r.block = make(chan struct{})
	s := New(r)
	load(t, s, configA)

	out := &sink{}
	finished := make(chan struct{})
	go func() {
		s.Run(context.Background(), out.send, "s1", []string{"root"})
		close(finished)
	}()

	require.Eventually(t, func() bool { return len(r.requests()) == 1 }, time.Second, 5*time.Millisecond)
	s.Cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("run not interrupted")
	}
	assert.Empty(t, out.all(), "a stopped session sends nothing")
	assert.Len(t, s.Configs(), 1, "cancel keeps configurations")
}

func TestSuite_RunReplacesSessionWithSameID(t *testing.T) {
	r := newRunner()
	r.block = make(chan struct{})
	s := New(r)
	load(t, s, configA)
	discard := func(protocol.Message) {}

	first := make(chan struct{})
	go func() {
		s.Run(context.Background(), discard, "s1", []string{"root"})
		close(first)
	}()
	require.Eventually(t, func() bool { return len(r.requests()) == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan struct{})
	go func() {
		s.Run(context.Background(), discard, "s1", []string{"root"})
		close(second)
	}()
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("previous session not stopped")
	}
	require.Eventually(t, func() bool { return len(r.requests()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Active("s1"), "the replaced run must not unregister its successor")

	s.Cancel()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("cancel did not reach the newer session")
	}
	assert.False(t, s.Active("s1"))
}

func TestSuite_CancelWhileRunsStart(t *testing.T) {
	r := newRunner()
	r.block = make(chan struct{})
	s := New(r)
	load(t, s, configA)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Run(context.Background(), func(protocol.Message) {}, id, []string{"root"})
		}(fmt.Sprintf("s%d", i))
		if i%3 == 0 {
			go s.Cancel()
		}
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	// Every registered session is reachable by a later Cancel.
	require.Eventually(t, func() bool {
		s.Cancel()
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}, 3*time.Second, 5*time.Millisecond)
}

func TestSuite_DropInterruptsAndDisposes(t *testing.T) {
	r := newRunner()
	r.block = make(chan struct{})
	s := New(r)
	_, idA := load(t, s, configA)
	_, idB := load(t, s, configB)

	finished := make(chan struct{})
	go func() {
		s.Run(context.Background(), func(protocol.Message) {}, "s1", []string{idA})
		close(finished)
	}()
	require.Eventually(t, func() bool { return len(r.requests()) == 1 }, time.Second, 5*time.Millisecond)

	s.Drop(idA)
	<-finished
	assert.False(t, s.Registry().Exists(idA))
	assert.True(t, s.Registry().Exists(idB))

	s.Drop("")
	assert.Empty(t, s.Configs())
	assert.Equal(t, 0, s.Registry().Len(domain.KindTest))
}

func TestSuite_DebugSerialXOR(t *testing.T) {
	r := newRunner()
	s := New(r)
	_, idA := load(t, s, configA)
	_, idB := load(t, s, configB)
	files := s.Configs()[0].Files()

	var readies []string
	ready := func(configID string, port uint16) error {
		assert.Equal(t, uint16(9229), port)
		readies = append(readies, configID)
		return nil
	}

	out := &sink{}
	s.Debug(context.Background(), out.send, ready, []string{"root"}, 9229,
		protocol.SerialPlan{X: true, List: []string{idB}})

	var done []string
	for _, d := range ofType[protocol.Done](out.all()) {
		done = append(done, d.File)
	}
	assert.Equal(t, []string{files[0].ID, files[1].ID, idB}, done, "A is serial, B is not")
	assert.Equal(t, []string{idA, idA, idB}, readies)

	reqs := r.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{fileF0}, reqs[0].Files)
	assert.Nil(t, reqs[2].Files)
	assert.Equal(t, uint16(9229), reqs[2].Debug.Port)
}

func TestSuite_DebugSerialFileKeepsItsTitles(t *testing.T) {
	r := newRunner()
	s := New(r)
	load(t, s, configA)
	c := s.Configs()[0]
	files := c.Files()
	b := files[0].Tests()[1]

	s.Debug(context.Background(), func(protocol.Message) {}, func(string, uint16) error { return nil },
		[]string{b.ID, files[1].ID}, 9229, protocol.SerialPlan{X: true})

	reqs := r.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"b"}, reqs[0].Titles)
	assert.Equal(t, []string{"c"}, reqs[1].Titles)
}

func TestCommonDir(t *testing.T) {
	root := filepath.FromSlash("/repo")
	assert.Equal(t, root, commonDir(configA, nil))
	assert.Equal(t, root, commonDir(configA, []DiscoveredFile{
		{Path: fileF0}, {Path: fileU},
	}))
	assert.Equal(t, filepath.FromSlash("/repo/test"), commonDir(configA, []DiscoveredFile{
		{Path: fileF0}, {Path: fileF1},
	}))
	assert.Equal(t, filepath.FromSlash("/repo"), commonDir(configA, []DiscoveredFile{
		{Path: fileF0}, {Path: filepath.FromSlash("/repo/testing/x.js")},
	}))
}

// Package suite is the worker-side orchestrator: it owns the loaded
// configurations and the active run sessions, and drives a Runner.
package suite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"avatx/internal/domain"
	"avatx/internal/entity"
	"avatx/internal/logging"
	"avatx/internal/protocol"
	"avatx/internal/session"
)

// ReadyFunc tells the coordinator that the debuggee of configID waits on
// port. It returns once the coordinator has acknowledged.
type ReadyFunc func(configID string, port uint16) error

// Suite holds the loaded configurations and the sessions running them.
type Suite struct {
	runner Runner
	reg    *entity.Registry
	log    zerolog.Logger

	mu       sync.Mutex
	configs  []*entity.ConfigInfo
	sessions cmap.ConcurrentMap[string, *session.Session]
}

// New returns an empty Suite driving runner.
func New(runner Runner) *Suite {
	return &Suite{
		runner:   runner,
		reg:      entity.NewRegistry(),
		log:      logging.For("suite"),
		sessions: cmap.New[*session.Session](),
	}
}

// Registry returns the id registry shared by every configuration.
func (s *Suite) Registry() *entity.Registry { return s.reg }

// Configs returns the loaded configurations in load order.
func (s *Suite) Configs() []*entity.ConfigInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.ConfigInfo(nil), s.configs...)
}

// Load discovers the tests of the configuration file and streams one prefix,
// its files and then their cases to sink. Loading a file again replaces the
// previous configuration.
func (s *Suite) Load(ctx context.Context, file string, sink session.SendFunc) (*entity.ConfigInfo, error) {
	file = filepath.Clean(file)
	s.dropWhere(func(c *entity.ConfigInfo) bool { return c.Name == file })

	d, err := s.runner.Discover(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("suite: discover %s: %w", file, err)
	}

	c := s.reg.NewConfig(file)
	c.Prefix = commonDir(file, d.Files)
	sink(protocol.Prefix{ID: c.ID, File: file, Prefix: c.Prefix})

	type discovered struct {
		file   *entity.FileInfo
		titles []string
	}
	var found []discovered
	seen := map[string]bool{}
	for _, df := range d.Files {
		path := filepath.Clean(df.Path)
		if seen[path] {
			continue
		}
		seen[path] = true
		rel, err := filepath.Rel(c.Prefix, path)
		if err != nil {
			rel = path
		}
		f := c.AddFile(rel)
		sink(protocol.File{ID: f.ID, Config: c.ID, File: rel})
		found = append(found, discovered{file: f, titles: df.Tests})
	}
	for _, d := range found {
		titles := map[string]bool{}
		for _, title := range d.titles {
			if titles[title] {
				continue
			}
			titles[title] = true
			t := d.file.AddTest(title)
			sink(protocol.Case{ID: t.ID, File: d.file.ID, Test: title})
		}
	}

	s.mu.Lock()
	s.configs = append(s.configs, c)
	s.mu.Unlock()
	s.log.Debug().Str("config", c.ID).Str("file", file).Int("files", len(found)).Msg("configuration loaded")
	return c, nil
}

// Run executes the plan ids under a new session. Configurations run
// concurrently; each one that ran is followed by done with its id. Run
// returns when all of them have finished.
func (s *Suite) Run(ctx context.Context, sink session.SendFunc, sessionID string, ids []string) {
	sess := s.open(ctx, sessionID, sink)
	defer s.close(sess)

	var wg sync.WaitGroup
	for _, c := range s.Configs() {
		sel, ok := Resolve(c, ids)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(c *entity.ConfigInfo) {
			defer wg.Done()
			req := RunRequest{Files: sel.Files, Titles: sel.Titles}
			s.runConfig(sess, c, req)
			sess.Send(protocol.Done{File: c.ID})
		}(c)
	}
	wg.Wait()
}

// Debug executes the plan ids one configuration at a time with the debugger
// on port. Serial configurations, as decided by serial, run one file at a
// time and report done per file; the others report done per configuration.
func (s *Suite) Debug(ctx context.Context, sink session.SendFunc, ready ReadyFunc, ids []string, port uint16, serial protocol.SerialPlan) {
	sessionID := "debug-" + uuid.NewString()
	sess := s.open(ctx, sessionID, sink)
	defer s.close(sess)

	for _, c := range s.Configs() {
		if sess.Stopped() {
			return
		}
		sel, ok := Resolve(c, ids)
		if !ok {
			continue
		}
		configID := c.ID
		debug := &DebugOptions{Port: port, Ready: func() error { return ready(configID, port) }}

		if !serial.IsSerial(c.ID) {
			s.runConfig(sess, c, RunRequest{Files: sel.Files, Titles: sel.Titles, Debug: debug})
			sess.Send(protocol.Done{File: c.ID})
			continue
		}
		for _, f := range sel.files(c) {
			if sess.Stopped() {
				return
			}
			s.runConfig(sess, c, RunRequest{Files: []string{f.Path()}, Titles: sel.titlesIn(f), Debug: debug})
			sess.Send(protocol.Done{File: f.ID})
		}
	}
}

// Cancel stops every active session. Configurations stay loaded.
func (s *Suite) Cancel() {
	for _, id := range s.sessions.Keys() {
		if sess, ok := s.sessions.Pop(id); ok {
			sess.Stop()
		}
	}
}

// Drop disposes the configuration with id, or every configuration when id
// is empty. Runs on disposed configurations are interrupted.
func (s *Suite) Drop(id string) {
	s.dropWhere(func(c *entity.ConfigInfo) bool { return id == "" || c.ID == id })
}

func (s *Suite) dropWhere(match func(*entity.ConfigInfo) bool) {
	s.mu.Lock()
	var dropped []*entity.ConfigInfo
	kept := s.configs[:0]
	for _, c := range s.configs {
		if match(c) {
			dropped = append(dropped, c)
		} else {
			kept = append(kept, c)
		}
	}
	s.configs = kept
	s.mu.Unlock()

	for _, c := range dropped {
		c.Dispose()
		s.log.Debug().Str("config", c.ID).Msg("configuration dropped")
	}
}

func (s *Suite) open(ctx context.Context, id string, sink session.SendFunc) *session.Session {
	sess := session.New(ctx, id, sink)
	s.sessions.Upsert(id, sess, func(exists bool, prev, next *session.Session) *session.Session {
		if exists {
			prev.Stop()
		}
		return next
	})
	return sess
}

// close unregisters sess unless a newer session took its id.
func (s *Suite) close(sess *session.Session) {
	s.sessions.RemoveCb(sess.ID, func(_ string, current *session.Session, exists bool) bool {
		return exists && current == sess
	})
}

// Active reports whether a session with id is registered.
func (s *Suite) Active(id string) bool {
	return s.sessions.Has(id)
}

// runConfig runs req against c, holding c for the duration. Results are
// mapped back to test ids and sent through sess.
func (s *Suite) runConfig(sess *session.Session, c *entity.ConfigInfo, req RunRequest) {
	ctx, cancel := context.WithCancel(sess.Context())
	defer cancel()

	release := c.Activate(cancel)
	defer release()
	remove := sess.AddInterrupt(cancel)
	defer remove()

	if c.Disposed() || ctx.Err() != nil {
		return
	}

	req.Config = c.Name
	err := s.runner.Run(ctx, req, func(file, title string, state domain.State) {
		id, ok := c.TestID(title, file)
		if !ok {
			s.log.Debug().Str("file", file).Str("test", title).Msg("result for unknown test")
			return
		}
		sess.Send(protocol.Result{Test: id, State: state})
	})
	if err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Str("config", c.ID).Msg("run failed")
	}
}

// files returns the FileInfos the selection covers, in selection order.
func (sel Selection) files(c *entity.ConfigInfo) []*entity.FileInfo {
	all := c.Files()
	if sel.All {
		return all
	}
	byPath := make(map[string]*entity.FileInfo, len(all))
	for _, f := range all {
		byPath[f.Path()] = f
	}
	var out []*entity.FileInfo
	for _, p := range sel.Files {
		if f, ok := byPath[p]; ok {
			out = append(out, f)
		}
	}
	return out
}

// commonDir returns the deepest directory containing every file, or the
// directory of the configuration when there are none.
func commonDir(configFile string, files []DiscoveredFile) string {
	if len(files) == 0 {
		return filepath.Dir(configFile)
	}
	prefix := filepath.Dir(filepath.Clean(files[0].Path))
	for _, f := range files[1:] {
		dir := filepath.Dir(filepath.Clean(f.Path))
		for !within(dir, prefix) {
			parent := filepath.Dir(prefix)
			if parent == prefix {
				break
			}
			prefix = parent
		}
	}
	return prefix
}

func within(dir, prefix string) bool {
	if dir == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(dir, prefix)
}

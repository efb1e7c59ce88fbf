// Package tree assembles the presentation tree from discovery messages.
package tree

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"avatx/internal/domain"
	"avatx/internal/logging"
	"avatx/internal/metrics"
	"avatx/internal/protocol"
)

// RootLabel is the label of the root suite.
const RootLabel = "avatx"

// Node is a Suite or a Test.
type Node interface {
	NodeID() string
	NodeLabel() string
}

// Suite groups configurations, files or the whole tool.
type Suite struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	File     string `json:"file,omitempty"`
	Children []Node `json:"children"`
}

// Test is a single test case.
type Test struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	File  string `json:"file"`
}

func (s *Suite) NodeID() string    { return s.ID }
func (s *Suite) NodeLabel() string { return s.Label }
func (t *Test) NodeID() string     { return t.ID }
func (t *Test) NodeLabel() string  { return t.Label }

// Tests returns every test below s, depth first.
func (s *Suite) Tests() []*Test {
	var out []*Test
	for _, child := range s.Children {
		switch n := child.(type) {
		case *Test:
			out = append(out, n)
		case *Suite:
			out = append(out, n.Tests()...)
		}
	}
	return out
}

// Find returns the node with id, searching depth first.
func (s *Suite) Find(id string) (Node, bool) {
	if s.ID == id {
		return s, true
	}
	for _, child := range s.Children {
		if child.NodeID() == id {
			return child, true
		}
		if sub, ok := child.(*Suite); ok {
			if n, ok := sub.Find(id); ok {
				return n, true
			}
		}
	}
	return nil, false
}

type config struct {
	suite  *Suite
	prefix string
}

// Builder accumulates prefix, file and case messages. It is safe for
// concurrent use; messages of one configuration must arrive in discovery order.
type Builder struct {
	log zerolog.Logger

	mu      sync.Mutex
	root    *Suite
	configs map[string]*config
	files   map[string]*Suite
	paths   map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		log:     logging.For("tree"),
		root:    &Suite{ID: domain.RootID, Label: RootLabel},
		configs: map[string]*config{},
		files:   map[string]*Suite{},
		paths:   map[string]string{},
	}
}

// PushPrefix registers a configuration suite.
func (b *Builder) PushPrefix(m protocol.Prefix) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.configs[m.ID]; ok {
		return
	}
	b.paths[m.File] = m.ID
	for _, child := range b.root.Children {
		if s, ok := child.(*Suite); ok && s.ID == m.ID {
			b.configs[m.ID] = &config{suite: s, prefix: m.Prefix}
			return
		}
	}
	s := &Suite{ID: m.ID, Label: filepath.Base(m.File), File: m.File}
	b.configs[m.ID] = &config{suite: s, prefix: m.Prefix}
	b.root.Children = append(b.root.Children, s)
}

// PushFile adds a file suite under its configuration. Files of unknown
// configurations are logged and dropped.
func (b *Builder) PushFile(m protocol.File) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.configs[m.Config]
	if !ok {
		b.drop(protocol.TypeFile, m.ID, m.Config)
		return
	}
	if _, ok := b.files[m.ID]; ok {
		return
	}
	s := &Suite{ID: m.ID, Label: m.File, File: joinPrefix(c.prefix, m.File)}
	b.files[m.ID] = s
	c.suite.Children = append(c.suite.Children, s)
}

// PushTest adds a test under its file. Tests of unknown files are logged and
// dropped.
func (b *Builder) PushTest(m protocol.Case) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[m.File]
	if !ok {
		b.drop(protocol.TypeCase, m.ID, m.File)
		return
	}
	for _, child := range f.Children {
		if child.NodeID() == m.ID {
			return
		}
	}
	f.Children = append(f.Children, &Test{ID: m.ID, Label: m.Test, File: f.File})
}

// Build sorts every suite's children by label, case-insensitively, and
// returns the root. The id lookup is cleared, so files and tests pushed
// afterwards are dropped until their prefix is pushed again.
func (b *Builder) Build() *Suite {
	b.mu.Lock()
	defer b.mu.Unlock()
	sortSuite(b.root)
	b.configs = map[string]*config{}
	b.files = map[string]*Suite{}
	return b.root
}

// Configs maps each configuration file path to its id.
func (b *Builder) Configs() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.paths))
	for k, v := range b.paths {
		out[k] = v
	}
	return out
}

func (b *Builder) drop(typ protocol.Type, id, parent string) {
	metrics.DiscoveryDrops.WithLabelValues(string(typ)).Inc()
	b.log.Warn().Str("type", string(typ)).Str("id", id).Str("parent", parent).Msg("dropping discovery message with unknown parent")
}

func sortSuite(s *Suite) {
	sort.SliceStable(s.Children, func(i, j int) bool {
		return strings.ToLower(s.Children[i].NodeLabel()) < strings.ToLower(s.Children[j].NodeLabel())
	})
	for _, child := range s.Children {
		if sub, ok := child.(*Suite); ok {
			sortSuite(sub)
		}
	}
}

func joinPrefix(prefix, file string) string {
	if prefix == "" {
		return file
	}
	return filepath.Join(prefix, file)
}

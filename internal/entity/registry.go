// Package entity holds the in-memory registry of discovered configurations,
// files and tests. Each entity owns an identifier drawn from a per-kind arena
// in a Registry; disposing an entity returns its identifier to the arena.
package entity

import (
	"strconv"
	"sync"

	"avatx/internal/domain"
	"avatx/internal/hashid"
)

// Registry is the set of identifiers currently held by live entities, one
// arena per kind.
type Registry struct {
	mu     sync.Mutex
	arenas map[domain.Kind]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{arenas: map[domain.Kind]map[string]struct{}{
		domain.KindConfig: {},
		domain.KindFile:   {},
		domain.KindTest:   {},
	}}
}

// Exists reports whether id is held by a live entity.
func (r *Registry) Exists(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	arena, ok := r.arenas[domain.Kind(id[0])]
	if !ok {
		return false
	}
	_, ok = arena[id]
	return ok
}

// Len returns the number of live entities of kind.
func (r *Registry) Len(kind domain.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.arenas[kind])
}

func (r *Registry) allocate(kind domain.Kind, seed string, wrap hashid.Wrap) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	arena := r.arenas[kind]
	id := hashid.Allocate(seed, func(id string) bool {
		_, taken := arena[id]
		return taken
	}, wrap)
	arena[id] = struct{}{}
	return id
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if arena, ok := r.arenas[domain.Kind(id[0])]; ok {
		delete(arena, id)
	}
}

func tag(kind domain.Kind) hashid.Wrap {
	return func(digest string) string { return string(kind) + digest }
}

// tagWithLength embeds the name length after the digest, reducing collisions
// between different names of the same kind.
func tagWithLength(kind domain.Kind, name string) hashid.Wrap {
	n := strconv.FormatInt(int64(len(name)), 16)
	return func(digest string) string { return string(kind) + digest + n }
}

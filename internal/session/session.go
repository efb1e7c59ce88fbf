// Package session scopes one run: the messages it may still send and the
// interrupts that stop it.
package session

import (
	"context"
	"sync"

	"avatx/internal/protocol"
)

// SendFunc delivers a message to the coordinator.
type SendFunc func(protocol.Message)

// Session is one logical run spanning every configuration it touches. Once
// stopped it stays inert: sends are dropped and new interrupts fire at once.
type Session struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	send   SendFunc

	mu         sync.Mutex
	stopped    bool
	interrupts map[uint64]func()
	next       uint64
}

// New returns a live session.
func New(parent context.Context, id string, send SendFunc) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:         id,
		ctx:        ctx,
		cancel:     cancel,
		send:       send,
		interrupts: map[uint64]func(){},
	}
}

// Context is cancelled when the session stops.
func (s *Session) Context() context.Context { return s.ctx }

// Send forwards msg unless the session has stopped.
func (s *Session) Send(msg protocol.Message) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || s.send == nil {
		return
	}
	s.send(msg)
}

// AddInterrupt registers fn to run on Stop and returns a func that
// unregisters it. On a stopped session fn runs immediately.
func (s *Session) AddInterrupt(fn func()) (remove func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	s.next++
	id := s.next
	s.interrupts[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.interrupts, id)
		s.mu.Unlock()
	}
}

// Stop runs every registered interrupt once. Later calls do nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	fns := s.interrupts
	s.interrupts = nil
	s.mu.Unlock()

	s.cancel()
	for _, fn := range fns {
		fn()
	}
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

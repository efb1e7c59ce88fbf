package explorer

import (
	"avatx/internal/domain"
	"avatx/internal/tree"
)

// Event is published to subscribers. It is one of DiscoveryEvent,
// StateEvent, DoneEvent, ReadyEvent, ErrorEvent or ExitEvent.
type Event interface {
	event()
}

// DiscoveryEvent carries the tree built by a load.
type DiscoveryEvent struct {
	Root *tree.Suite
}

// StateEvent is a test state change.
type StateEvent struct {
	ID    string
	State domain.State
}

// DoneEvent reports that a configuration or file finished running.
type DoneEvent struct {
	ID string
}

// ReadyEvent asks for a debugger to attach to Port. The worker waits until
// every subscriber has returned.
type ReadyEvent struct {
	Config string
	Port   uint16
}

// ErrorEvent reports a worker, protocol or control error.
type ErrorEvent struct {
	Err error
}

// ExitEvent reports that the worker process exited.
type ExitEvent struct {
	Code int
}

func (DiscoveryEvent) event() {}
func (StateEvent) event()     {}
func (DoneEvent) event()      {}
func (ReadyEvent) event()     {}
func (ErrorEvent) event()     {}
func (ExitEvent) event()      {}

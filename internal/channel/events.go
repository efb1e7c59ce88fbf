package channel

import (
	"avatx/internal/protocol"
)

// EventKind names an observable channel event.
type EventKind string

// Message events mirror the worker's message types.
const (
	EventPrefix = EventKind(protocol.TypePrefix)
	EventFile   = EventKind(protocol.TypeFile)
	EventCase   = EventKind(protocol.TypeCase)
	EventResult = EventKind(protocol.TypeResult)
	EventDone   = EventKind(protocol.TypeDone)
	EventReady  = EventKind(protocol.TypeReady)

	EventError      EventKind = "error"
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventExit       EventKind = "exit"
)

// sticky kinds are remembered, so Once fires for them even when they
// happened before the call.
func sticky(kind EventKind) bool {
	return kind == EventConnect || kind == EventDisconnect || kind == EventExit
}

// Event is one of MessageEvent, ErrorEvent, ConnectEvent, DisconnectEvent or ExitEvent.
type Event interface {
	Kind() EventKind
}

// MessageEvent carries a validated inbound message.
type MessageEvent struct {
	Message protocol.Message
}

// ErrorEvent reports a protocol, connection or control error.
type ErrorEvent struct {
	Err error
}

// ConnectEvent is emitted each time the message socket is established.
type ConnectEvent struct {
	Port uint16
}

// DisconnectEvent is emitted when the message socket closes. Err is nil for
// an orderly close.
type DisconnectEvent struct {
	Err error
}

// ExitEvent is emitted once, when the process exits.
type ExitEvent struct {
	Code int
}

func (e MessageEvent) Kind() EventKind  { return EventKind(e.Message.Kind()) }
func (ErrorEvent) Kind() EventKind      { return EventError }
func (ConnectEvent) Kind() EventKind    { return EventConnect }
func (DisconnectEvent) Kind() EventKind { return EventDisconnect }
func (ExitEvent) Kind() EventKind       { return EventExit }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	c  *Channel
	id uint64
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.c == nil {
		return
	}
	s.c.mu.Lock()
	delete(s.c.subs, s.id)
	s.c.mu.Unlock()
}

// On subscribes fn to every inbound message of type T.
func On[T protocol.Message](c *Channel, fn func(T)) *Subscription {
	return c.Subscribe(func(ev Event) {
		if me, ok := ev.(MessageEvent); ok {
			if m, ok := me.Message.(T); ok {
				fn(m)
			}
		}
	})
}

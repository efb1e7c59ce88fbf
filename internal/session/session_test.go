package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"avatx/internal/protocol"
)

func TestSession_StopRunsInterrupts(t *testing.T) {
	s := New(context.Background(), "s1", nil)
	var calls []string
	s.AddInterrupt(func() { calls = append(calls, "a") })
	remove := s.AddInterrupt(func() { calls = append(calls, "b") })
	remove()

	s.Stop()
	s.Stop()

	assert.Equal(t, []string{"a"}, calls)
	assert.True(t, s.Stopped())
	assert.Error(t, s.Context().Err())
}

func TestSession_InertAfterStop(t *testing.T) {
	var sent []protocol.Message
	s := New(context.Background(), "s1", func(m protocol.Message) { sent = append(sent, m) })

	s.Send(protocol.Done{File: "c1"})
	s.Stop()
	s.Send(protocol.Done{File: "c2"})

	fired := false
	s.AddInterrupt(func() { fired = true })

	assert.Equal(t, []protocol.Message{protocol.Done{File: "c1"}}, sent)
	assert.True(t, fired, "interrupts added after stop fire immediately")
}

func TestSession_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := New(parent, "s1", nil)
	cancel()
	<-s.Context().Done()
	assert.False(t, s.Stopped())
}

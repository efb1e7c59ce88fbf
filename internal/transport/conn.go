// Package transport carries protocol messages over a websocket. Frames are
// numbered; a receptive send waits until the peer acknowledges it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"avatx/internal/future"
	"avatx/internal/logging"
	"avatx/internal/protocol"
)

// TokenHeader carries the worker's authentication token.
const TokenHeader = "Worker-Token"

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Handler receives every inbound message in arrival order. err is set, and msg
// nil, when the message failed validation. Handlers for receptive messages run
// on their own goroutine and the acknowledgement is sent once they return.
type Handler func(msg protocol.Message, err error)

// Conn is one side of a message socket.
type Conn struct {
	ws      *websocket.Conn
	handler Handler
	log     zerolog.Logger

	writeMu sync.Mutex
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*future.Future[struct{}]

	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
	err       error
	inflight  sync.WaitGroup
}

func newConn(ws *websocket.Conn, side string) *Conn {
	return &Conn{
		ws:      ws,
		log:     logging.For("transport").With().Str("side", side).Logger(),
		pending: map[uint64]*future.Future[struct{}]{},
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
}

func (c *Conn) start(handler Handler) {
	c.handler = handler
	go c.readLoop()
}

// Send writes a fire-and-forget message.
func (c *Conn) Send(msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.write(protocol.Frame{Seq: c.seq.Add(1), Body: body})
}

// Request writes a receptive message and waits for the peer's acknowledgement.
func (c *Conn) Request(ctx context.Context, msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.request(ctx, body)
}

func (c *Conn) request(ctx context.Context, body []byte) error {
	seq := c.seq.Add(1)
	ack := future.New[struct{}]()

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[seq] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	if err := c.write(protocol.Frame{Seq: seq, Want: true, Body: body}); err != nil {
		return err
	}
	_, err := ack.Wait(ctx)
	return err
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Drained is closed once the read loop has handed its last message to the
// handler.
func (c *Conn) Drained() <-chan struct{} { return c.drained }

// Err returns the reason the connection ended, nil after a clean Close.
func (c *Conn) Err() error {
	<-c.closed
	return c.err
}

// Close ends the connection. Pending requests fail with ErrClosed.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
	c.writeMu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		_ = c.ws.Close()

		c.mu.Lock()
		for _, ack := range c.pending {
			ack.Reject(ErrClosed)
		}
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *Conn) write(f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		go c.shutdown(err)
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.drained)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.shutdown(err)
			return
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if f.IsReply() {
			c.mu.Lock()
			ack := c.pending[f.Reply]
			c.mu.Unlock()
			if ack != nil {
				ack.Resolve(struct{}{})
			}
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f protocol.Frame) {
	msg, err := protocol.Decode(f.Body)
	if err != nil {
		c.log.Debug().Err(err).Msg("inbound message rejected")
	}
	if !f.Want {
		c.handler(msg, err)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer func() {
			if werr := c.write(protocol.Frame{Reply: f.Seq}); werr != nil && !errors.Is(werr, ErrClosed) {
				c.log.Warn().Err(werr).Uint64("seq", f.Seq).Msg("acknowledgement failed")
			}
		}()
		c.handler(msg, err)
	}()
}

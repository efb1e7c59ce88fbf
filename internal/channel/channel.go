// Package channel supervises one worker process: it spawns the process, reads
// its handshake, connects the message socket and republishes inbound messages
// as typed events. A channel that has died is never reused.
package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"avatx/internal/future"
	"avatx/internal/logging"
	"avatx/internal/metrics"
	"avatx/internal/process"
	"avatx/internal/protocol"
	"avatx/internal/transport"
)

// DefaultTimeout bounds the handshake and the reconnection window.
const DefaultTimeout = 10 * time.Second

var (
	ErrNotConnected     = errors.New("channel: not connected")
	ErrHandshakeTimeout = errors.New("channel: handshake timed out")
)

// State of a Channel.
type State int

const (
	Idle State = iota
	Spawning
	AwaitingHandshake
	Connected
	Draining
	Dead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Spawning:
		return "spawning"
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Connected:
		return "connected"
	case Draining:
		return "draining"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Options configure a Channel.
type Options struct {
	Process process.Options
	// Timeout bounds the wait for the handshake and the grace period after
	// the socket closes. Zero means DefaultTimeout.
	Timeout time.Duration
}

type waiter struct {
	kind EventKind
	f    *future.Future[Event]
}

// Channel owns one worker process end to end.
type Channel struct {
	spawner process.Spawner
	opts    Options
	log     zerolog.Logger

	mu          sync.Mutex
	state       State
	proc        process.Process
	conn        *transport.Conn
	port        uint16
	token       string
	exitCode    int
	killed      bool
	disconnect  bool
	grace       *time.Timer
	subs        map[uint64]func(Event)
	nextSub     uint64
	waiters     []*waiter
	sticky      map[EventKind]Event
	dead        chan struct{}
	startedOnce sync.Once
}

// New returns an idle Channel. Subscribe before calling Start to observe
// every event.
func New(spawner process.Spawner, opts Options) *Channel {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Channel{
		spawner:  spawner,
		opts:     opts,
		log:      logging.For("channel"),
		subs:     map[uint64]func(Event){},
		sticky:   map[EventKind]Event{},
		dead:     make(chan struct{}),
		exitCode: -1,
	}
}

// Start forks the worker and begins the handshake. Failures are reported as
// error events; a channel whose process could not start goes straight to Dead.
func (c *Channel) Start(ctx context.Context) {
	c.startedOnce.Do(func() {
		c.mu.Lock()
		if c.state != Idle {
			c.mu.Unlock()
			return
		}
		c.state = Spawning
		c.mu.Unlock()

		proc, err := c.spawner.Spawn(ctx, c.opts.Process)
		if err != nil {
			c.emit(ErrorEvent{Err: fmt.Errorf("channel: spawn: %w", err)})
			c.die(-1)
			return
		}
		metrics.WorkerSpawns.Inc()

		c.mu.Lock()
		c.proc = proc
		c.state = AwaitingHandshake
		c.mu.Unlock()
		c.log.Debug().Str("path", c.opts.Process.Path).Msg("worker spawned")

		go c.watchExit(proc)
		go c.handshake(proc)
	})
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alive reports whether the process has not exited yet.
func (c *Channel) Alive() bool {
	select {
	case <-c.dead:
		return false
	default:
		return true
	}
}

// Connected reports whether the message socket is up.
func (c *Channel) Connected() bool { return c.State() == Connected }

// ExitCode returns the exit code once the process is dead.
func (c *Channel) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.state == Dead
}

// Dead is closed once the channel is dead.
func (c *Channel) Dead() <-chan struct{} { return c.dead }

// Subscribe registers fn for every event. fn runs on the goroutine that
// produced the event and must not block, except for ready events, whose
// acknowledgement is sent after all subscribers have returned.
func (c *Channel) Subscribe(fn func(Event)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = fn
	return &Subscription{c: c, id: c.nextSub}
}

// Once returns a future for the next event of kind. Connect, disconnect and
// exit resolve immediately when the last such transition already happened.
// Pending futures are cancelled when the channel dies; exit futures resolve.
func (c *Channel) Once(kind EventKind) *future.Future[Event] {
	f := future.New[Event]()

	c.mu.Lock()
	if ev, ok := c.sticky[kind]; ok {
		c.mu.Unlock()
		f.Resolve(ev)
		return f
	}
	if c.state == Dead {
		c.mu.Unlock()
		f.Cancel()
		return f
	}
	w := &waiter{kind: kind, f: f}
	f.OnCancel(func() { c.removeWaiter(w) })
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return f
}

// Send writes msg to the worker. Receptive messages (load, run, debug) block
// until the worker acknowledges them. Send failures are reported as error
// events and Send returns nil; only ctx ending is returned as an error.
func (c *Channel) Send(ctx context.Context, msg protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.emit(ErrorEvent{Err: fmt.Errorf("%w: dropped %s message", ErrNotConnected, msg.Kind())})
		return nil
	}

	var err error
	if protocol.Receptive(msg.Kind()) {
		err = conn.Request(ctx, msg)
	} else {
		err = conn.Send(msg)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.emit(ErrorEvent{Err: fmt.Errorf("channel: send %s: %w", msg.Kind(), err)})
	}
	return nil
}

// Disconnect closes the message socket, waiting for it to be established
// first if needed. The worker gets the grace period to exit on its own before
// it is killed. Calling Disconnect more than once has no further effect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.disconnect {
		c.mu.Unlock()
		return
	}
	c.disconnect = true
	state, conn := c.state, c.conn
	c.mu.Unlock()

	switch state {
	case Idle:
		c.die(-1)
	case Connected:
		conn.Close()
	}
}

// Close disconnects and waits for the process to exit. When ctx ends first
// the process is killed.
func (c *Channel) Close(ctx context.Context) error {
	c.Disconnect()
	select {
	case <-c.dead:
		return nil
	case <-ctx.Done():
		c.kill()
		<-c.dead
		return ctx.Err()
	}
}

func (c *Channel) handshake(proc process.Process) {
	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		hs := proc.Handshake()
		line, err := bufio.NewReader(hs).ReadString('\n')
		hs.Close()
		if err != nil && strings.TrimSpace(line) != "" {
			err = nil
		}
		lines <- result{line, err}
	}()

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-lines:
	case <-timer.C:
		metrics.HandshakeFailures.WithLabelValues("timeout").Inc()
		c.emit(ErrorEvent{Err: ErrHandshakeTimeout})
		c.kill()
		return
	case <-c.dead:
		return
	}

	if res.err != nil {
		metrics.HandshakeFailures.WithLabelValues("read").Inc()
		c.emit(ErrorEvent{Err: fmt.Errorf("channel: read handshake: %w", res.err)})
		c.kill()
		return
	}
	port, token, err := protocol.ParseHandshake(res.line)
	if err != nil {
		metrics.HandshakeFailures.WithLabelValues("malformed").Inc()
		c.emit(ErrorEvent{Err: err})
		c.kill()
		return
	}

	c.mu.Lock()
	c.port, c.token = port, token
	c.mu.Unlock()
	c.log.Debug().Str("port", strconv.Itoa(int(port))).Msg("handshake received")

	conn, err := c.dial(port, token)
	if err != nil {
		metrics.HandshakeFailures.WithLabelValues("connect").Inc()
		c.emit(ErrorEvent{Err: err})
		c.kill()
		return
	}
	c.attach(conn)
}

// dial connects to the worker, retrying until the timeout elapses or the
// channel dies.
func (c *Channel) dial(port uint16, token string) (*transport.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	go func() {
		select {
		case <-c.dead:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.opts.Timeout

	var conn *transport.Conn
	err := backoff.Retry(func() error {
		var err error
		conn, err = transport.Dial(ctx, port, token, c.onMessage)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("channel: connect to worker: %w", err)
	}
	return conn, nil
}

func (c *Channel) attach(conn *transport.Conn) {
	c.mu.Lock()
	if c.state == Dead {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.state = Connected
	c.conn = conn
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	delete(c.sticky, EventDisconnect)
	requested := c.disconnect
	port := c.port
	c.mu.Unlock()

	c.emit(ConnectEvent{Port: port})
	go c.watchConn(conn)
	if requested {
		conn.Close()
	}
}

func (c *Channel) watchConn(conn *transport.Conn) {
	<-conn.Done()
	err := conn.Err()

	c.mu.Lock()
	if c.conn != conn || c.state == Dead {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Draining
	delete(c.sticky, EventConnect)
	c.grace = time.AfterFunc(c.opts.Timeout, func() {
		c.log.Warn().Msg("worker did not reconnect or exit in time, killing it")
		c.kill()
	})
	requested := c.disconnect
	port, token := c.port, c.token
	c.mu.Unlock()

	if err != nil {
		c.emit(ErrorEvent{Err: fmt.Errorf("channel: connection lost: %w", err)})
	}
	c.emit(DisconnectEvent{Err: err})

	if requested {
		return
	}
	if conn, err := c.dial(port, token); err == nil {
		c.attach(conn)
	}
}

func (c *Channel) watchExit(proc process.Process) {
	<-proc.Exited()
	c.die(proc.ExitCode())
}

func (c *Channel) kill() {
	c.mu.Lock()
	proc := c.proc
	if proc != nil && c.state != Dead {
		c.killed = true
	}
	c.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.Kill(); err != nil {
		c.log.Warn().Err(err).Msg("kill worker")
	}
}

func (c *Channel) die(code int) {
	c.drain()

	c.mu.Lock()
	if c.state == Dead {
		c.mu.Unlock()
		return
	}
	c.state = Dead
	c.exitCode = code
	conn := c.conn
	c.conn = nil
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	ev := ExitEvent{Code: code}
	c.sticky[EventExit] = ev
	delete(c.sticky, EventConnect)
	waiters := c.waiters
	c.waiters = nil
	subs := c.subscribers()
	killed := c.killed
	c.mu.Unlock()

	close(c.dead)
	if conn != nil {
		conn.Close()
	}
	metrics.WorkerExits.WithLabelValues(strconv.FormatBool(killed)).Inc()
	c.log.Debug().Int("code", code).Bool("killed", killed).Msg("worker exited")

	for _, w := range waiters {
		if w.kind == EventExit {
			w.f.Resolve(ev)
			continue
		}
		w.f.Cancel()
	}
	for _, fn := range subs {
		fn(ev)
	}
}

// drain waits, at most for the timeout, until the read loop of the current
// connection has delivered what the worker wrote before exiting.
func (c *Channel) drain() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case <-conn.Drained():
	case <-timer.C:
		c.log.Warn().Msg("worker connection still open after exit")
	}
}

func (c *Channel) onMessage(msg protocol.Message, err error) {
	if err != nil {
		metrics.ProtocolErrors.WithLabelValues("coordinator").Inc()
		c.log.Warn().Err(err).Msg("dropping invalid message from worker")
		c.emit(ErrorEvent{Err: err})
		return
	}
	if r, ok := msg.(protocol.Result); ok {
		metrics.RecordResult(r.State)
	}
	c.emit(MessageEvent{Message: msg})
}

func (c *Channel) emit(ev Event) {
	kind := ev.Kind()

	c.mu.Lock()
	if c.state == Dead {
		c.mu.Unlock()
		return
	}
	if sticky(kind) {
		c.sticky[kind] = ev
	}
	var fire []*waiter
	keep := c.waiters[:0]
	for _, w := range c.waiters {
		if w.kind == kind {
			fire = append(fire, w)
		} else {
			keep = append(keep, w)
		}
	}
	c.waiters = keep
	subs := c.subscribers()
	c.mu.Unlock()

	for _, w := range fire {
		w.f.Resolve(ev)
	}
	for _, fn := range subs {
		fn(ev)
	}
	if ee, ok := ev.(ErrorEvent); ok && len(subs) == 0 {
		c.log.Error().Err(ee.Err).Msg("unobserved channel error")
	}
}

// subscribers returns the subscriber funcs in registration order. c.mu must be held.
func (c *Channel) subscribers() []func(Event) {
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

func (c *Channel) removeWaiter(target *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

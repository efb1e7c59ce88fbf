// Package processtest runs in-process stand-ins for worker processes.
package processtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"avatx/internal/process"
)

// Func is the body of a fake worker. It writes its handshake to handshake and
// returns its exit code. ctx is cancelled when the process is killed.
type Func func(ctx context.Context, opts process.Options, handshake io.WriteCloser) int

// Spawner starts a Func per Spawn call.
type Spawner struct {
	Run Func
	// Err, when set, makes Spawn fail.
	Err error

	mu    sync.Mutex
	procs []*Process
}

// Spawn implements process.Spawner.
func (s *Spawner) Spawn(ctx context.Context, opts process.Options) (process.Process, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Run == nil {
		return nil, errors.New("processtest: no Run func")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	p := &Process{
		Options: opts,
		hs:      r,
		cancel:  cancel,
		exited:  make(chan struct{}),
	}

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()

	go func() {
		code := s.Run(runCtx, opts, w)
		w.Close()
		p.mu.Lock()
		if p.killed {
			code = -1
		}
		p.code = code
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

// Spawned returns every process started so far.
func (s *Spawner) Spawned() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Process is a fake process.Process.
type Process struct {
	Options process.Options

	hs     *io.PipeReader
	cancel context.CancelFunc
	exited chan struct{}

	mu     sync.Mutex
	code   int
	killed bool
}

func (p *Process) Handshake() io.ReadCloser { return p.hs }

func (p *Process) Kill() error {
	p.mu.Lock()
	select {
	case <-p.exited:
		p.mu.Unlock()
		return nil
	default:
	}
	p.killed = true
	p.mu.Unlock()
	p.cancel()
	p.hs.Close()
	return nil
}

// Killed reports whether Kill was called before the process exited.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *Process) Exited() <-chan struct{} { return p.exited }

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// Package process starts worker processes. A worker reports its handshake on
// an extra pipe inherited as file descriptor 3.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
)

// HandshakeFD is the descriptor a worker writes its handshake line to.
const HandshakeFD = 3

// Options describe how to start a worker.
type Options struct {
	Dir  string
	Env  map[string]string
	Path string
	Args []string

	// Stdout and Stderr receive the raw output of the process.
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a started worker.
type Process interface {
	// Handshake is the single-use out-of-band channel from the worker.
	Handshake() io.ReadCloser
	// Kill terminates the process. Killing an exited process is not an error.
	Kill() error
	// Exited is closed once the process has exited.
	Exited() <-chan struct{}
	// ExitCode is valid after Exited is closed; -1 when the process was signalled.
	ExitCode() int
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, opts Options) (Process, error)
}

// Exec starts real operating-system processes.
type Exec struct{}

// Spawn implements Spawner.
func (Exec) Spawn(ctx context.Context, opts Options) (Process, error) {
	if opts.Path == "" {
		return nil, errors.New("process: interpreter path is empty")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("process: handshake pipe: %w", err)
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = Environ(opts.Env)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("process: start %s: %w", opts.Path, err)
	}
	w.Close()

	p := &execProcess{cmd: cmd, handshake: r, exited: make(chan struct{}), code: -1}
	go p.wait()
	return p, nil
}

// Environ flattens env into KEY=VALUE pairs in key order.
func Environ(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

type execProcess struct {
	cmd       *exec.Cmd
	handshake *os.File

	mu     sync.Mutex
	code   int
	exited chan struct{}
}

func (p *execProcess) wait() {
	_ = p.cmd.Wait()
	p.mu.Lock()
	p.code = p.cmd.ProcessState.ExitCode()
	p.mu.Unlock()
	p.handshake.Close()
	close(p.exited)
}

func (p *execProcess) Handshake() io.ReadCloser { return p.handshake }

func (p *execProcess) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("process: kill %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *execProcess) Exited() <-chan struct{} { return p.exited }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// HandshakeWriter returns the worker-side end of the handshake pipe.
func HandshakeWriter() *os.File {
	return os.NewFile(HandshakeFD, "handshake")
}

// Package worker runs the native input worker subprocess and exposes it as an
// asynchronous request/response channel.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// State is the lifecycle state of the worker subprocess.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateBusy
	StateCrashed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures the subprocess and request defaults.
type Config struct {
	// Command is the worker argv.
	Command []string
	// Env is appended to the host environment.
	Env []string
	// DefaultTimeout applies when Go/Invoke get a non-positive timeout.
	DefaultTimeout time.Duration
	// GeometryTimeout applies to Geometry.
	GeometryTimeout time.Duration
	// StderrTail is the number of stderr bytes kept for exit diagnostics.
	StderrTail int
	// KillGrace is how long Close waits after closing stdin before killing.
	KillGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 3 * time.Second
	}
	if c.GeometryTimeout <= 0 {
		c.GeometryTimeout = 1200 * time.Millisecond
	}
	if c.StderrTail <= 0 {
		c.StderrTail = 400
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 2 * time.Second
	}
	return c
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State      string `json:"state"`
	PID        int    `json:"pid,omitempty"`
	Pending    int    `json:"pending"`
	Restarts   int    `json:"restarts"`
	LastExit   string `json:"last_exit,omitempty"`
	StderrTail string `json:"stderr_tail,omitempty"`
}

// Manager owns at most one live worker subprocess. Requests are written by a
// single goroutine per subprocess in the order Go was called; responses are
// matched by id only.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	proc     *process
	state    State
	nextID   int64
	restarts int
	spawned  int
	lastExit error
	closed   bool
}

// NewManager creates a manager. Nothing is spawned until the first request or Start.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// Go issues a request without blocking and returns its future.
func (m *Manager) Go(op protocol.Op, p protocol.Payload, timeout time.Duration) *Call {
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	call := newCall(op, p, timeout)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		call.finish(nil, ErrClosed)
		return call
	}
	proc, err := m.ensureLocked()
	if err != nil {
		m.mu.Unlock()
		call.finish(nil, fmt.Errorf("%w: %v", ErrWorkerNotRunning, err))
		return call
	}
	m.nextID++
	call.ID = m.nextID
	m.mu.Unlock()

	if !proc.pending.add(call) {
		call.finish(nil, ErrWorkerNotRunning)
		return call
	}
	call.arm(func() {
		proc.pending.remove(call.ID)
		if call.finish(nil, ErrTimeout) {
			logger.WithComponent("worker").Debug().
				Int64("id", call.ID).
				Str("op", string(call.Op)).
				Msg("Request timed out")
		}
	})
	proc.enqueue(call)
	return call
}

// Invoke issues a request and waits for its outcome.
func (m *Manager) Invoke(ctx context.Context, op protocol.Op, p protocol.Payload, timeout time.Duration) (*protocol.Response, error) {
	return m.Go(op, p, timeout).Wait(ctx)
}

// Geometry queries the geometry of h.
func (m *Manager) Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error) {
	resp, err := m.Invoke(ctx, protocol.OpGeom, protocol.Payload{Hwnd: h}, m.cfg.GeometryTimeout)
	if err != nil {
		return protocol.Geometry{}, err
	}
	return resp.Geometry()
}

// Start spawns the worker if needed and waits for its ready message.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	proc, err := m.ensureLocked()
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerNotRunning, err)
	}

	select {
	case <-proc.ready:
		return nil
	case <-proc.exited:
		return proc.exitError(ErrWorkerNotRunning)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the lifecycle state. Ready turns into Busy while requests are pending.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady && m.proc != nil && m.proc.pending.count() > 0 {
		return StateBusy
	}
	return m.state
}

// Stats returns diagnostics for status endpoints.
func (m *Manager) Stats() Stats {
	state := m.State()

	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{State: state.String(), Restarts: m.restarts}
	if m.lastExit != nil {
		st.LastExit = m.lastExit.Error()
	}
	if m.proc != nil {
		st.Pending = m.proc.pending.count()
		st.StderrTail = m.proc.tail.String()
		if m.proc.cmd.Process != nil {
			st.PID = m.proc.cmd.Process.Pid
		}
	}
	return st
}

// Close stops the subprocess and fails everything pending. It is safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	proc := m.proc
	m.state = StateClosed
	m.mu.Unlock()

	if proc == nil {
		return nil
	}
	proc.stdin.Close()
	select {
	case <-proc.exited:
	case <-time.After(m.cfg.KillGrace):
		if proc.cmd.Process != nil {
			proc.cmd.Process.Kill()
		}
		<-proc.exited
	}
	return nil
}

// ensureLocked returns the live subprocess, spawning one when none exists or
// the previous one exited. Caller holds m.mu.
func (m *Manager) ensureLocked() (*process, error) {
	if m.proc != nil && !m.proc.hasExited() {
		return m.proc, nil
	}
	if len(m.cfg.Command) == 0 {
		return nil, ErrNoCommand
	}

	proc, err := m.spawn()
	if err != nil {
		m.state = StateCrashed
		m.lastExit = err
		return nil, err
	}
	if m.spawned > 0 {
		m.restarts++
	}
	m.spawned++
	m.proc = proc
	m.state = StateStarting
	return proc, nil
}

func (m *Manager) spawn() (*process, error) {
	log := logger.WithComponent("worker")

	cmd := exec.Command(m.cfg.Command[0], m.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), m.cfg.Env...)
	configureCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	wait, err := startCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	log.Info().
		Int("pid", cmd.Process.Pid).
		Strs("command", m.cfg.Command).
		Msg("Worker spawned")

	proc := &process{
		cmd:     cmd,
		stdin:   stdin,
		pending: newPendingSet(),
		tail:    newTailBuffer(m.cfg.StderrTail),
		ready:   make(chan struct{}),
		exited:  make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		m.readStdout(proc, stdout)
	}()
	go func() {
		defer readers.Done()
		proc.readStderr(stderr)
	}()
	go proc.writeLoop()
	go func() {
		readers.Wait()
		m.handleExit(proc, wait())
	}()

	return proc, nil
}

func (m *Manager) readStdout(proc *process, r io.Reader) {
	log := logger.WithComponent("worker")
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			m.handleLine(proc, trimmed)
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("Worker stdout closed")
			}
			return
		}
	}
}

func (m *Manager) handleLine(proc *process, line []byte) {
	log := logger.WithComponent("worker")

	msg, err := protocol.DecodeMessage(line)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping malformed worker line")
		return
	}

	switch msg.Kind {
	case protocol.KindReady:
		proc.readyOnce.Do(func() {
			m.mu.Lock()
			if m.proc == proc && m.state == StateStarting {
				m.state = StateReady
			}
			m.mu.Unlock()
			close(proc.ready)
			log.Info().Int("pid", proc.cmd.Process.Pid).Msg("Worker ready")
		})
	case protocol.KindError:
		log.Warn().Str("message", msg.Text).Msg("Worker reported internal error")
	case protocol.KindResponse:
		resp := msg.Response
		call := proc.pending.remove(resp.ID)
		if call == nil {
			log.Debug().Int64("id", resp.ID).Msg("Discarding response with no pending request")
			return
		}
		if resp.OK {
			call.finish(resp, nil)
		} else {
			call.finish(resp, &RemoteError{Op: call.Op, Message: resp.Err})
		}
	}
}

func (m *Manager) handleExit(proc *process, waitErr error) {
	log := logger.WithComponent("worker")

	proc.exitErr = waitErr
	close(proc.exited)

	m.mu.Lock()
	if m.proc == proc {
		if m.closed {
			m.state = StateClosed
		} else {
			m.state = StateCrashed
		}
		m.lastExit = proc.exitError(ErrWorkerExit)
	}
	m.mu.Unlock()

	failed := proc.pending.drain()
	for _, call := range failed {
		cause := ErrWorkerNotRunning
		if call.written.Load() {
			cause = ErrWorkerExit
		}
		call.finish(nil, proc.exitError(cause))
	}

	event := log.Warn()
	if m.isClosed() {
		event = log.Info()
	}
	event.
		Err(waitErr).
		Int("pid", proc.cmd.Process.Pid).
		Int("failed_pending", len(failed)).
		Str("stderr_tail", proc.tail.String()).
		Msg("Worker exited")
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// process is one subprocess instance and the goroutines serving it.
type process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending *pendingSet
	tail    *tailBuffer

	ready     chan struct{}
	readyOnce sync.Once
	exited    chan struct{}
	exitErr   error

	qmu   sync.Mutex
	queue []*Call
	wake  chan struct{}
}

func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *process) exitError(cause error) *ExitError {
	return &ExitError{Cause: cause, ExitErr: p.exitErr, StderrTail: p.tail.String()}
}

func (p *process) enqueue(c *Call) {
	p.qmu.Lock()
	p.queue = append(p.queue, c)
	p.qmu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *process) takeQueue() []*Call {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	q := p.queue
	p.queue = nil
	return q
}

// writeLoop is the only writer of stdin. It holds requests back until ready.
func (p *process) writeLoop() {
	log := logger.WithComponent("worker")

	select {
	case <-p.ready:
	case <-p.exited:
		return
	}

	for {
		for _, call := range p.takeQueue() {
			if call.isFinished() {
				continue
			}
			line, err := protocol.Encode(protocol.Request{ID: call.ID, Op: call.Op, Payload: call.Payload})
			if err != nil {
				p.pending.remove(call.ID)
				call.finish(nil, fmt.Errorf("encode request: %w", err))
				continue
			}
			call.written.Store(true)
			if _, err := p.stdin.Write(line); err != nil {
				log.Debug().Err(err).Int64("id", call.ID).Msg("Failed to write request")
				p.pending.remove(call.ID)
				call.finish(nil, fmt.Errorf("%w: %v", ErrWorkerExit, err))
			}
		}

		select {
		case <-p.wake:
		case <-p.exited:
			return
		}
	}
}

func (p *process) readStderr(r io.Reader) {
	log := logger.WithComponent("worker")
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p.tail.Write([]byte(line))
			log.Debug().Str("stderr", string(bytes.TrimSpace([]byte(line)))).Msg("Worker stderr")
		}
		if err != nil {
			return
		}
	}
}

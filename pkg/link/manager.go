package link

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gwillem/augerbot/pkg/netmsg"
	"github.com/gwillem/augerbot/pkg/observability"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/rs/zerolog"
)

// Dispatcher applies a decoded batch to the robot state.
type Dispatcher interface {
	Apply(items []netmsg.Item) robot.ApplyResult
}

// Config configures a Manager.
type Config struct {
	Endpoint Endpoint

	// Ack answers every applied batch with an OK envelope.
	Ack bool
	// ExitOnEmpty terminates the process when an empty message arrives.
	ExitOnEmpty bool
	// MaxConnectAttempts bounds dials, or binds in listen role, per task.
	// Zero retries until the task is cancelled.
	MaxConnectAttempts int
	// Backoff paces failed opens. The zero value means DefaultBackoff.
	Backoff BackoffConfig
}

// Manager supervises one receive task at a time. A task opens a fresh
// connection, feeds every message to the dispatcher and exits on link loss.
// Restarting after a loss is the caller's decision.
type Manager struct {
	cfg      Config
	dispatch Dispatcher
	logger   zerolog.Logger
	open     func(ctx context.Context, ep Endpoint) (Conn, error)
	rng      *rand.Rand

	mu     sync.Mutex
	state  State
	task   *task
	conn   Conn
	tasks  int
	closed bool
}

type task struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func (t *task) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// NewManager creates a manager that dispatches into d.
func NewManager(cfg Config, d Dispatcher, logger zerolog.Logger) *Manager {
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{
		cfg:      cfg,
		dispatch: d,
		logger:   logger.With().Str("component", "link").Logger(),
		open:     Open,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches a new receive task. It fails while the previous task is
// still running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.task != nil && !m.task.exited() {
		return ErrTaskRunning
	}
	if m.tasks > 0 {
		observability.RecordReconnect()
	}
	m.tasks++

	tctx, cancel := context.WithCancel(ctx)
	t := &task{done: make(chan struct{}), cancel: cancel}
	m.task = t
	m.setStateLocked(Disconnected)
	go m.run(tctx, t)
	return nil
}

// Alive reports whether the current receive task is still running.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task != nil && !m.task.exited()
}

// Done is closed when the current receive task exits.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.task.done
}

// Err returns why the last receive task exited, nil while it runs.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task == nil || !m.task.exited() {
		return nil
	}
	return m.task.err
}

// State returns the state of the current connection.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tasks returns how many receive tasks have been started.
func (m *Manager) Tasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks
}

// Close sends STOP to a connected peer, ends the running task and refuses
// further starts.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	t, conn := m.task, m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Send(netmsg.Stop()); err != nil {
			m.logger.Debug().Err(err).Msg("send STOP")
		}
	}
	if t != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.setStateLocked(s)
	m.mu.Unlock()
}

func (m *Manager) setStateLocked(s State) {
	if m.state != s {
		m.logger.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("link state")
	}
	m.state = s
	observability.SetLinkState(int(s))
}

func (m *Manager) run(ctx context.Context, t *task) {
	defer close(t.done)
	defer t.cancel()

	conn, err := m.connect(ctx)
	if err != nil {
		m.finish(t, nil, err)
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.setStateLocked(Established)
	m.mu.Unlock()
	m.logger.Info().Str("conn", conn.ID()).Str("peer", conn.RemoteAddr()).Msg("control endpoint connected")

	// Unblocks Receive on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	m.finish(t, conn, m.receive(ctx, conn))
}

func (m *Manager) finish(t *task, conn Conn, err error) {
	if conn != nil {
		_ = conn.Close()
	}

	m.mu.Lock()
	t.err = err
	if m.conn == conn {
		m.conn = nil
	}
	m.setStateLocked(Closed)
	m.mu.Unlock()

	reason := LossReason(err)
	observability.RecordLinkLoss(reason)
	ev := m.logger.Warn()
	if reason == "cancelled" {
		ev = m.logger.Info()
	}
	if conn != nil {
		ev = ev.Str("conn", conn.ID())
	}
	ev.Err(err).Str("reason", reason).Msg("receive task exited")
}

func (m *Manager) connect(ctx context.Context) (Conn, error) {
	ep := m.cfg.Endpoint
	waiting := Connecting
	if ep.Role != RoleConnect {
		waiting = Listening
		m.logger.Info().Str("endpoint", ep.String()).Msg("waiting for control endpoint")
	}

	// Failed binds are retried like failed dials, so a taken port never
	// ends the task straight away.
	for attempt := 1; ; attempt++ {
		m.setState(waiting)
		conn, err := m.open(ctx, ep)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if m.cfg.MaxConnectAttempts > 0 && attempt >= m.cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempt, err)
		}
		delay := NextBackoffDelay(m.cfg.Backoff, attempt, m.rng)
		ev := m.logger.Debug()
		if attempt == 1 {
			ev = m.logger.Warn()
		}
		ev.Err(err).Int("attempt", attempt).Dur("retry_in", delay).Str("endpoint", ep.String()).Msg("open failed")

		m.setState(Disconnected)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// receive runs until the link is lost. Every cause is returned as the
// reason; the caller treats them all alike.
func (m *Manager) receive(ctx context.Context, conn Conn) error {
	for {
		msg, err := conn.Receive(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		if len(msg) == 0 {
			if m.cfg.ExitOnEmpty {
				m.logger.Fatal().Str("conn", conn.ID()).Msg("empty message received, exiting")
			}
			return ErrEmptyMessage
		}
		if err := m.handle(conn, msg); err != nil {
			return err
		}
	}
}

func (m *Manager) handle(conn Conn, msg []byte) error {
	batch, err := netmsg.Parse(msg)
	if err != nil {
		m.logger.Warn().Err(err).Str("conn", conn.ID()).Bytes("raw", msg).Msg("dropping message")
		return nil
	}
	for _, s := range batch.Skipped {
		m.logger.Warn().Err(s.Err).Str("raw", s.Raw).Msg("skipping malformed segment")
	}
	if netmsg.IsStop(batch.Items) {
		return ErrPeerStop
	}

	res := m.dispatch.Apply(batch.Items)
	for _, key := range res.Unknown {
		m.logger.Debug().Str("key", key).Msg("ignoring unknown key")
	}
	for _, err := range res.Rejected {
		m.logger.Warn().Err(err).Msg("rejected item")
	}
	observability.RecordBatch(res.Applied, len(res.Unknown), len(res.Rejected), len(batch.Skipped))

	if m.cfg.Ack && len(batch.Items) > 0 {
		if err := conn.Send(netmsg.OK()); err != nil {
			return fmt.Errorf("send ack: %w", err)
		}
	}
	return nil
}

// LossReason classifies why a receive task exited, for logs and metrics.
func LossReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrEmptyMessage):
		return "empty"
	case errors.Is(err, ErrPeerStop):
		return "stop"
	case errors.Is(err, ErrGaveUp):
		return "unreachable"
	default:
		return "transport"
	}
}

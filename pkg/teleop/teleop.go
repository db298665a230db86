// Package teleop runs the transmission loop that relays the robot state to
// the microcontroller and stops the robot when the control link drops.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gwillem/augerbot/pkg/link"
	"github.com/gwillem/augerbot/pkg/observability"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/gwillem/augerbot/pkg/serialmsg"
	"github.com/gwillem/augerbot/pkg/serialport"
	"github.com/gwillem/augerbot/pkg/timer"
	"github.com/rs/zerolog"
)

var (
	// ErrStopped is returned by Start when the link was lost with
	// reconnection disabled.
	ErrStopped        = errors.New("teleop: stopped after link loss")
	ErrAlreadyRunning = errors.New("teleop: already running")
)

// Transport is the serial side of the loop. A nil *serialport.Port is a
// valid Transport that fails every call with serialport.ErrNoPort.
type Transport interface {
	Send(msg string) error
	ReadLine() (string, error)
	Close() error
}

// Link is the supervised receive task.
type Link interface {
	Start(ctx context.Context) error
	Alive() bool
	State() link.State
	Close() error
}

// Status is published after every tick.
type Status struct {
	Snapshot  robot.Snapshot
	Link      link.State
	LastFrame string
	Timestamp time.Time
	Error     error
}

// Config holds configuration for the controller.
type Config struct {
	State     *robot.State
	Transport Transport
	Link      Link
	Timers    robot.TimerConfig
	Limits    robot.Limits
	Reconnect bool
	Clock     timer.Clock
	Logger    zerolog.Logger
}

type poll struct {
	spec  robot.TelemetrySpec
	timer *timer.Timer
}

// Controller manages the transmission loop.
type Controller struct {
	state     *robot.State
	variant   robot.Variant
	serial    Transport
	link      Link
	limits    robot.Limits
	reconnect bool
	tick      time.Duration
	logger    zerolog.Logger

	command  *timer.Timer
	polls    []poll
	lastSent map[int][]string
	lastErr  error
	noPort   bool

	mu        sync.RWMutex
	running   bool
	lastFrame string
	stateCh   chan Status
	logCh     chan string
}

// NewController creates a new transmission controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.State == nil {
		return nil, errors.New("teleop: robot state is required")
	}
	if cfg.Link == nil {
		return nil, errors.New("teleop: link is required")
	}
	if cfg.Transport == nil {
		cfg.Transport = (*serialport.Port)(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = timer.System
	}
	tick := cfg.Timers.Tick.D()
	if tick <= 0 {
		tick = 5 * time.Millisecond
	}

	variant := cfg.State.Variant()
	c := &Controller{
		state:     cfg.State,
		variant:   variant,
		serial:    cfg.Transport,
		link:      cfg.Link,
		limits:    cfg.Limits,
		reconnect: cfg.Reconnect,
		tick:      tick,
		logger:    cfg.Logger.With().Str("component", "teleop").Logger(),
		command:   timer.NewWithClock(cfg.Timers.Command.D(), cfg.Clock),
		lastSent:  make(map[int][]string),
		stateCh:   make(chan Status, 1),
		logCh:     make(chan string, 10),
	}
	for _, spec := range variant.Telemetry {
		interval := cfg.Timers.Telemetry(spec.Name)
		if interval <= 0 {
			continue
		}
		c.polls = append(c.polls, poll{spec: spec, timer: timer.NewWithClock(interval, cfg.Clock)})
	}
	return c, nil
}

// States returns a channel that receives the latest status.
func (c *Controller) States() <-chan Status {
	return c.stateCh
}

// Logs returns a channel that receives operator-facing log lines.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Tick returns the loop period.
func (c *Controller) Tick() time.Duration {
	return c.tick
}

// LastFrame returns the last frame written to the controller.
func (c *Controller) LastFrame() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrame
}

func (c *Controller) log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.logger.Info().Msg(line)
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), line)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start starts the receive task, sends the current state and then runs the
// loop until ctx is done or the terminal state is reached. Link and serial
// resources are released on return.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()
	defer c.shutdown()

	if err := c.link.Start(ctx); err != nil {
		return fmt.Errorf("start link: %w", err)
	}
	c.transmit(true)
	c.command.Start()
	c.log("Transmission started, tick %s", c.tick)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.step(ctx); err != nil {
				return err
			}
		}
	}
}

// step runs one tick: link supervision first, then the command timer, then
// telemetry polls.
func (c *Controller) step(ctx context.Context) error {
	if !c.link.Alive() {
		if err := c.linkLost(ctx); err != nil {
			return err
		}
	}

	if c.command.Expired() {
		c.transmit(false)
		c.command.Start()
	}
	for i := range c.polls {
		p := &c.polls[i]
		if p.timer.Expired() {
			c.poll(p.spec)
			p.timer.Start()
		}
	}

	c.sendStatus()
	return nil
}

// linkLost zeroes the robot and pushes the zeros out before any reconnect.
// A task that ends without a command having arrived since the last failsafe
// is restarted without another forced frame.
func (c *Controller) linkLost(ctx context.Context) error {
	fresh := !c.state.InFailsafe()
	if fresh {
		c.state.Failsafe()
		observability.RecordFailsafe()
		c.transmit(true)
		c.command.Start()
	}

	if !c.reconnect {
		c.log("Control link lost, reconnect disabled: stopping")
		return ErrStopped
	}
	if fresh {
		c.log("Control link lost, robot stopped, waiting for a new connection")
	} else {
		c.logger.Debug().Msg("receive task restarted, robot still stopped")
	}
	if err := c.link.Start(ctx); err != nil {
		if errors.Is(err, link.ErrClosed) {
			return ErrStopped
		}
		c.logger.Warn().Err(err).Msg("restart receive task")
	}
	return nil
}

// transmit writes the variant's frames. OnChange frames are skipped when
// their payload equals the last one written, unless forced.
func (c *Controller) transmit(forced bool) {
	snap := c.state.Snapshot()
	if c.limits != nil {
		snap = c.limits.Apply(snap)
	}

	for _, spec := range c.variant.Frames {
		frame := c.variant.Frame(spec, snap)
		if spec.OnChange && !forced {
			if last, ok := c.lastSent[spec.Code]; ok && slices.Equal(last, frame.Payload) {
				continue
			}
		}
		msg := frame.String()
		if err := c.serial.Send(msg); err != nil {
			observability.RecordFrameFailed(spec.Code)
			c.sendFailed(msg, err)
			continue
		}
		c.noPort = false
		c.lastErr = nil
		c.lastSent[spec.Code] = frame.Payload
		observability.RecordFrameSent(spec.Code, forced)
		c.logger.Trace().Str("frame", msg).Bool("forced", forced).Msg("sent")

		c.mu.Lock()
		c.lastFrame = msg
		c.mu.Unlock()
	}
}

func (c *Controller) sendFailed(msg string, err error) {
	c.lastErr = err
	if errors.Is(err, serialport.ErrNoPort) {
		// Logged once per outage, the loop keeps running without a controller.
		if !c.noPort {
			c.noPort = true
			c.logger.Warn().Str("frame", msg).Msg("no controller, frame not sent")
		}
		return
	}
	c.logger.Error().Err(err).Str("frame", msg).Msg("serial write failed")
}

// poll runs one request/response telemetry exchange.
func (c *Controller) poll(spec robot.TelemetrySpec) {
	req := serialmsg.Format(spec.Code)
	if err := c.serial.Send(req); err != nil {
		observability.RecordTelemetryError(spec.Name)
		c.sendFailed(req, err)
		return
	}
	line, err := c.serial.ReadLine()
	if err != nil {
		observability.RecordTelemetryError(spec.Name)
		c.logger.Debug().Err(err).Str("exchange", spec.Name).Msg("no telemetry response")
		return
	}
	frame, err := serialmsg.Parse(line)
	if err != nil {
		observability.RecordTelemetryError(spec.Name)
		c.logger.Warn().Err(err).Str("exchange", spec.Name).Str("raw", line).Msg("undecodable telemetry frame")
		return
	}
	values, err := frame.Ints()
	if err != nil {
		observability.RecordTelemetryError(spec.Name)
		c.logger.Warn().Err(err).Str("exchange", spec.Name).Str("raw", line).Msg("non-integer telemetry payload")
		return
	}

	switch spec.Target {
	case robot.TargetEncoders:
		c.state.SetEncoders(values)
	case robot.TargetButtons:
		c.state.SetButtons(values)
	}
}

func (c *Controller) sendStatus() {
	s := Status{
		Snapshot:  c.state.Snapshot(),
		Link:      c.link.State(),
		LastFrame: c.LastFrame(),
		Timestamp: time.Now(),
		Error:     c.lastErr,
	}
	select {
	case c.stateCh <- s:
	default:
		// Drop old status if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err := c.link.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close link")
	}
	// Leave the robot stopped.
	c.state.Failsafe()
	c.transmit(true)
	if err := c.serial.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close serial")
	}
	c.log("Transmission stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/gwillem/augerbot/pkg/link"
	"github.com/gwillem/augerbot/pkg/observability"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/gwillem/augerbot/pkg/serialport"
	"github.com/gwillem/augerbot/pkg/telemetry"
	"github.com/gwillem/augerbot/pkg/teleop"
)

type RunCommand struct {
	Variant     string `long:"variant" choice:"augerbot" choice:"drivetrain" description:"Robot variant"`
	Host        string `long:"host" description:"Control endpoint host (bind address when listening)"`
	Port        int    `long:"port" description:"Control endpoint port"`
	Role        string `long:"role" choice:"listen" choice:"connect" description:"Wait for the control endpoint or dial it"`
	Transport   string `long:"transport" choice:"tcp" choice:"ws" description:"Control channel transport"`
	SerialPort  string `long:"serial-port" description:"Serial device, skips discovery"`
	NoReconnect bool   `long:"no-reconnect" description:"Stop after the first link loss"`
	Ack         bool   `long:"ack" description:"Acknowledge every command batch"`
	ExitOnEmpty bool   `long:"exit-on-empty" description:"Exit the process on an empty message (link-loss testing)"`
	Limits      string `long:"limits" description:"JSON file with per-field min/max limits"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address"`
	MQTTBroker  string `long:"mqtt-broker" description:"Publish telemetry to this MQTT broker"`
	TUI         bool   `long:"tui" description:"Show the live dashboard"`
}

// apply overrides config values with the flags that were given.
func (c *RunCommand) apply(cfg *robot.Config) error {
	if c.Variant != "" {
		cfg.Variant = c.Variant
	}
	if c.Host != "" {
		cfg.Network.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Network.Port = c.Port
	}
	if c.Role != "" {
		cfg.Network.Role = c.Role
	}
	if c.Transport != "" {
		cfg.Network.Transport = c.Transport
	}
	if c.SerialPort != "" {
		cfg.Serial.Port = c.SerialPort
	}
	if c.NoReconnect {
		cfg.Reconnect = false
	}
	if c.Ack {
		cfg.Network.Ack = true
	}
	if c.ExitOnEmpty {
		cfg.Network.ExitOnEmpty = true
	}
	if c.Limits != "" {
		limits, err := robot.LoadLimits(c.Limits)
		if err != nil {
			return err
		}
		cfg.Limits = limits
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}
	if c.MQTTBroker != "" {
		cfg.MQTT.Broker = c.MQTTBroker
	}
	return cfg.Validate()
}

func endpointFor(n robot.NetworkConfig) link.Endpoint {
	return link.Endpoint{
		Role:      link.Role(n.Role),
		Transport: link.Transport(n.Transport),
		Host:      n.Host,
		Port:      n.Port,
		Path:      n.Path,
	}
}

func serialConfigFor(s robot.SerialConfig) serialport.Config {
	return serialport.Config{
		Name:        s.Port,
		Prefix:      s.Prefix,
		Index:       s.Index,
		SearchRange: s.SearchRange,
		Baud:        s.Baud,
		ReadTimeout: s.ReadTimeout.D(),
		Greeting:    s.Greeting,
	}
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig(opts.Config, opts.EnvFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	variant, _ := robot.VariantByName(cfg.Variant)

	logCfg := observability.DefaultLogConfig()
	var logOut io.Writer = os.Stderr
	var logLines *observability.LineWriter
	if c.TUI {
		logLines = observability.NewLineWriter(50)
		logOut = logLines
		logCfg.NoColor = true
		logCfg.Timestamp = false
	}
	logger := observability.InitLogger("augerbot", logOut, logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, err := serialport.Open(serialConfigFor(cfg.Serial))
	var ambiguous *serialport.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		logger.Error().Strs("candidates", ambiguous.Candidates).Msg("several serial ports answered, pick one with 'augerbot ports --save'")
		return err
	case err != nil:
		logger.Warn().Err(err).Msg("no robot controller, running without serial output")
		port = nil
	default:
		logger.Info().Str("port", port.Name()).Str("greeting", strings.TrimSpace(port.Greeting())).Msg("robot controller attached")
	}

	st := robot.NewState(variant)
	mgr := link.NewManager(link.Config{
		Endpoint:           endpointFor(cfg.Network),
		Ack:                cfg.Network.Ack,
		ExitOnEmpty:        cfg.Network.ExitOnEmpty,
		MaxConnectAttempts: cfg.Network.MaxConnectAttempts,
		Backoff:            link.DefaultBackoff(),
	}, st, logger)

	ctrl, err := teleop.NewController(teleop.Config{
		State:     st,
		Transport: port,
		Link:      mgr,
		Timers:    cfg.Timers,
		Limits:    cfg.Limits,
		Reconnect: cfg.Reconnect,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		_, errCh := observability.StartMetricsServer(ctx, cfg.Metrics.Addr, logger)
		go func() {
			if err := <-errCh; err != nil {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}
	if cfg.MQTT.Broker != "" {
		pub, err := startPublisher(ctx, cfg.MQTT, st, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	logger.Info().
		Str("variant", variant.Name).
		Str("endpoint", endpointFor(cfg.Network).String()).
		Bool("reconnect", cfg.Reconnect).
		Msg("engine starting")

	if !c.TUI {
		return exitReason(ctrl.Start(ctx), logger)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	p := tea.NewProgram(newDashboardModel(ctrl, variant, logLines, done), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		stop()
		<-done
		return fmt.Errorf("run dashboard: %w", err)
	}
	if m, ok := final.(dashboardModel); ok && m.finished {
		return exitReason(m.exitErr, logger)
	}
	stop()
	return exitReason(<-done, logger)
}

func startPublisher(ctx context.Context, cfg robot.MQTTConfig, src telemetry.Source, logger zerolog.Logger) (*telemetry.Publisher, error) {
	pub, err := telemetry.NewPublisher(telemetry.Config{
		Broker:   cfg.Broker,
		Topic:    cfg.Topic,
		ClientID: cfg.ClientID,
		Interval: cfg.Interval.D(),
	}, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := pub.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry publisher not connected")
			return
		}
		_ = pub.Run(ctx, src)
	}()
	return pub, nil
}

func exitReason(err error, logger zerolog.Logger) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info().Msg("engine stopped")
		return nil
	case errors.Is(err, teleop.ErrStopped):
		logger.Info().Msg("control link lost and reconnect disabled, engine stopped")
		return nil
	default:
		return err
	}
}

// Package telemetry publishes robot state snapshots to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/rs/zerolog"
)

var ErrNoBroker = errors.New("telemetry: no broker configured")

// Source provides the state to publish.
type Source interface {
	Snapshot() robot.Snapshot
}

// Config configures a Publisher.
type Config struct {
	Broker   string // host:port or a full URL such as tcp://host:1883
	Topic    string
	ClientID string
	Interval time.Duration
	Geometry robot.Geometry
}

// Message is the published JSON document.
type Message struct {
	Variant   string             `json:"variant"`
	Commands  map[string]float64 `json:"commands"`
	Encoders  []int64            `json:"encoders,omitempty"`
	Inches    []float64          `json:"inches,omitempty"`
	Buttons   []int64            `json:"buttons,omitempty"`
	Failsafe  bool               `json:"failsafe"`
	UpdatedAt *time.Time         `json:"telemetry_updated_at,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewMessage converts a snapshot, deriving travelled inches from encoder
// ticks with g.
func NewMessage(snap robot.Snapshot, g robot.Geometry, now time.Time) Message {
	msg := Message{
		Variant:   snap.Variant,
		Commands:  make(map[string]float64, len(snap.Commands)),
		Encoders:  snap.Telemetry.Encoders,
		Buttons:   snap.Telemetry.Buttons,
		Failsafe:  snap.Failsafe,
		Timestamp: now,
	}
	for name, v := range snap.Commands {
		msg.Commands[string(name)] = v
	}
	for _, ticks := range snap.Telemetry.Encoders {
		msg.Inches = append(msg.Inches, g.Inches(ticks))
	}
	if !snap.Telemetry.UpdatedAt.IsZero() {
		t := snap.Telemetry.UpdatedAt
		msg.UpdatedAt = &t
	}
	return msg
}

// newClient is replaced in tests.
var newClient = mqtt.NewClient

// Publisher sends snapshots to one topic.
type Publisher struct {
	cfg    Config
	client mqtt.Client
	logger zerolog.Logger
}

// NewPublisher builds a publisher. It does not connect.
func NewPublisher(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, ErrNoBroker
	}
	if cfg.Topic == "" {
		cfg.Topic = "augerbot/telemetry"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "augerbot-" + uuid.NewString()[:8]
	}
	if cfg.Geometry == (robot.Geometry{}) {
		cfg.Geometry = robot.DefaultGeometry()
	}

	p := &Publisher{cfg: cfg, logger: logger.With().Str("component", "telemetry").Logger()}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.OnConnect = func(mqtt.Client) {
		p.logger.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn().Err(err).Msg("MQTT connection lost")
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	p.client = newClient(opts)
	return p, nil
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns the publish topic.
func (p *Publisher) Topic() string {
	return p.cfg.Topic
}

// Connect waits for the first broker connection or ctx.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	for !token.WaitTimeout(100 * time.Millisecond) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", p.cfg.Broker, err)
	}
	return nil
}

// Publish sends one snapshot.
func (p *Publisher) Publish(snap robot.Snapshot) error {
	payload, err := json.Marshal(NewMessage(snap, p.cfg.Geometry, time.Now()))
	if err != nil {
		return err
	}
	token := p.client.Publish(p.cfg.Topic, 0, false, payload)
	if !token.WaitTimeout(p.cfg.Interval) {
		return fmt.Errorf("publish %s: timed out", p.cfg.Topic)
	}
	return token.Error()
}

// Run publishes src on every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, src Source) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !p.client.IsConnectionOpen() {
				continue
			}
			if err := p.Publish(src.Snapshot()); err != nil {
				p.logger.Warn().Err(err).Msg("publish telemetry")
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

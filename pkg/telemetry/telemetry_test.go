package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/rs/zerolog"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the publisher uses.
type fakeClient struct {
	mqtt.Client
	opts *mqtt.ClientOptions

	mu           sync.Mutex
	connected    bool
	disconnected bool
	msgs         []published
	connectErr   error
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func withFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	fc := &fakeClient{}
	orig := newClient
	newClient = func(o *mqtt.ClientOptions) mqtt.Client {
		fc.opts = o
		return fc
	}
	t.Cleanup(func() { newClient = orig })
	return fc
}

func TestNewPublisher_Defaults(t *testing.T) {
	if _, err := NewPublisher(Config{}, zerolog.Nop()); !errors.Is(err, ErrNoBroker) {
		t.Fatalf("err = %v, want ErrNoBroker", err)
	}

	fc := withFakeClient(t)
	p, err := NewPublisher(Config{Broker: "10.0.0.5:1883"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Topic() != "augerbot/telemetry" {
		t.Errorf("topic = %q", p.Topic())
	}
	if got := fc.opts.Servers[0].String(); got != "tcp://10.0.0.5:1883" {
		t.Errorf("broker = %q", got)
	}
	if fc.opts.ClientID == "" || !fc.opts.AutoReconnect {
		t.Errorf("client id %q auto reconnect %v", fc.opts.ClientID, fc.opts.AutoReconnect)
	}
}

func TestNewMessage(t *testing.T) {
	st := robot.NewState(robot.Drivetrain)
	st.Set(robot.LeftSpeed, -40)
	g := robot.DefaultGeometry()
	st.SetEncoders([]int64{int64(g.TicksPerRev), 0})

	msg := NewMessage(st.Snapshot(), g, time.Unix(0, 0))
	if msg.Variant != "drivetrain" || msg.Commands["left_speed"] != -40 {
		t.Errorf("msg = %+v", msg)
	}
	// One revolution is one wheel circumference.
	if want := g.WheelDiameter * math.Pi; len(msg.Inches) != 2 || math.Abs(msg.Inches[0]-want) > 1e-9 {
		t.Errorf("inches = %v, want [%v 0]", msg.Inches, want)
	}
	if msg.UpdatedAt == nil {
		t.Error("telemetry timestamp missing")
	}
}

func TestPublisher_Run(t *testing.T) {
	fc := withFakeClient(t)
	p, err := NewPublisher(Config{Broker: "tcp://broker:1883", Topic: "bots/1", Interval: 5 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	st := robot.NewState(robot.AugerBot)
	st.Set(robot.AugerLift, float64(robot.Forward))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, st) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(fc.published()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("nothing published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v", err)
	}
	p.Close()

	msg := fc.published()[0]
	if msg.topic != "bots/1" {
		t.Errorf("topic = %q", msg.topic)
	}
	var got Message
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Variant != "augerbot" || got.Commands["auger_lift"] != 1 {
		t.Errorf("payload = %s", msg.payload)
	}
	if !fc.disconnected {
		t.Error("Close did not disconnect")
	}
}

func TestPublisher_ConnectError(t *testing.T) {
	fc := withFakeClient(t)
	fc.connectErr = errors.New("not authorized")
	p, err := NewPublisher(Config{Broker: "broker:1883"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(context.Background()); err == nil {
		t.Error("expected connect error")
	}
}

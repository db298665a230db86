package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultConfigFile = "augerbot.toml"

// Environment overrides, applied after the config file.
const (
	EnvVariant    = "AUGERBOT_VARIANT"
	EnvHost       = "AUGERBOT_HOST"
	EnvPort       = "AUGERBOT_PORT"
	EnvRole       = "AUGERBOT_ROLE"
	EnvTransport  = "AUGERBOT_TRANSPORT"
	EnvSerialPort = "AUGERBOT_SERIAL_PORT"
	EnvReconnect  = "AUGERBOT_RECONNECT"
)

// Duration is a time.Duration written as text ("100ms") in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds the robot configuration
type Config struct {
	Variant   string        `json:"variant" toml:"variant"`
	Reconnect bool          `json:"reconnect" toml:"reconnect"`
	Network   NetworkConfig `json:"network" toml:"network"`
	Serial    SerialConfig  `json:"serial" toml:"serial"`
	Timers    TimerConfig   `json:"timers" toml:"timers"`
	Limits    Limits        `json:"limits,omitempty" toml:"limits,omitempty"`
	Metrics   MetricsConfig `json:"metrics" toml:"metrics"`
	MQTT      MQTTConfig    `json:"mqtt" toml:"mqtt"`
}

// NetworkConfig describes the control channel endpoint.
type NetworkConfig struct {
	Role               string `json:"role" toml:"role"`           // listen or connect
	Transport          string `json:"transport" toml:"transport"` // tcp or ws
	Host               string `json:"host" toml:"host"`
	Port               int    `json:"port" toml:"port"`
	Path               string `json:"path,omitempty" toml:"path,omitempty"`
	Ack                bool   `json:"ack" toml:"ack"`
	ExitOnEmpty        bool   `json:"exit_on_empty" toml:"exit_on_empty"`
	MaxConnectAttempts int    `json:"max_connect_attempts" toml:"max_connect_attempts"`
}

// Addr returns host:port.
func (n NetworkConfig) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// SerialConfig describes the microcontroller link.
type SerialConfig struct {
	Port        string   `json:"port,omitempty" toml:"port,omitempty"`
	Prefix      string   `json:"prefix" toml:"prefix"`
	Index       *int     `json:"index,omitempty" toml:"index,omitempty"`
	SearchRange int      `json:"search_range" toml:"search_range"`
	Baud        int      `json:"baud" toml:"baud"`
	ReadTimeout Duration `json:"read_timeout" toml:"read_timeout"`
	Greeting    bool     `json:"greeting" toml:"greeting"`
}

// TimerConfig holds the interval of every periodic operation. A zero
// telemetry interval disables that poll.
type TimerConfig struct {
	Tick     Duration `json:"tick" toml:"tick"`
	Command  Duration `json:"command" toml:"command"`
	Feedback Duration `json:"feedback" toml:"feedback"`
	Encoder  Duration `json:"encoder" toml:"encoder"`
	Button   Duration `json:"button" toml:"button"`
}

// Telemetry returns the interval configured for a telemetry exchange.
func (t TimerConfig) Telemetry(name string) time.Duration {
	switch name {
	case "feedback":
		return t.Feedback.D()
	case "encoders":
		return t.Encoder.D()
	case "buttons":
		return t.Button.D()
	default:
		return 0
	}
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" toml:"addr,omitempty"`
}

// MQTTConfig configures telemetry publishing. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string   `json:"broker,omitempty" toml:"broker,omitempty"`
	Topic    string   `json:"topic" toml:"topic"`
	ClientID string   `json:"client_id,omitempty" toml:"client_id,omitempty"`
	Interval Duration `json:"interval" toml:"interval"`
}

// DefaultConfig returns the settings of the TR-Augerbot deployment.
func DefaultConfig() Config {
	return Config{
		Variant:   AugerBot.Name,
		Reconnect: true,
		Network: NetworkConfig{
			Role:      "listen",
			Transport: "tcp",
			Host:      "0.0.0.0",
			Port:      12345,
			Path:      "/control",
		},
		Serial: SerialConfig{
			Prefix:      "/dev/ttyACM",
			SearchRange: 4,
			Baud:        9600,
			ReadTimeout: Duration(time.Second),
			Greeting:    true,
		},
		Timers: TimerConfig{
			Tick:    Duration(5 * time.Millisecond),
			Command: Duration(100 * time.Millisecond),
			Encoder: Duration(50 * time.Millisecond),
			Button:  Duration(100 * time.Millisecond),
		},
		Limits: DefaultLimits(),
		MQTT: MQTTConfig{
			Topic:    "augerbot/telemetry",
			Interval: Duration(time.Second),
		},
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file on top of the
// defaults. Files ending in .json are read as JSON, anything else as TOML.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isJSON(path) {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var data []byte
	if isJSON(path) {
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvVariant)); v != "" {
		c.Variant = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHost)); v != "" {
		c.Network.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		c.Network.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvRole)); v != "" {
		c.Network.Role = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTransport)); v != "" {
		c.Network.Transport = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSerialPort)); v != "" {
		c.Serial.Port = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvReconnect)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvReconnect, err)
		}
		c.Reconnect = b
	}
	return nil
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	if _, ok := VariantByName(c.Variant); !ok {
		return fmt.Errorf("config: unknown variant %q", c.Variant)
	}
	switch c.Network.Role {
	case "listen", "connect":
	default:
		return fmt.Errorf("config: network role must be listen or connect, got %q", c.Network.Role)
	}
	switch c.Network.Transport {
	case "tcp", "ws":
	default:
		return fmt.Errorf("config: network transport must be tcp or ws, got %q", c.Network.Transport)
	}
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("config: network port %d out of range", c.Network.Port)
	}
	if c.Timers.Tick <= 0 {
		return fmt.Errorf("config: timers.tick must be positive")
	}
	if c.Timers.Command <= 0 {
		return fmt.Errorf("config: timers.command must be positive")
	}
	if c.Timers.Feedback < 0 || c.Timers.Encoder < 0 || c.Timers.Button < 0 {
		return fmt.Errorf("config: telemetry intervals must not be negative")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial.baud must be positive")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

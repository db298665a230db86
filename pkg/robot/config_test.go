package robot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFrom_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "augerbot.toml")
	data := `
variant = "drivetrain"
reconnect = false

[network]
role = "connect"
transport = "ws"
host = "192.168.0.103"
port = 9000

[timers]
command = "50ms"
encoder = "20ms"

[limits.left_speed]
min = -100
max = 100
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Variant != "drivetrain" || cfg.Reconnect {
		t.Errorf("variant/reconnect = %q/%v", cfg.Variant, cfg.Reconnect)
	}
	if cfg.Network.Addr() != "192.168.0.103:9000" || cfg.Network.Role != "connect" {
		t.Errorf("network = %+v", cfg.Network)
	}
	if cfg.Timers.Command.D() != 50*time.Millisecond || cfg.Timers.Encoder.D() != 20*time.Millisecond {
		t.Errorf("timers = %+v", cfg.Timers)
	}
	// Unset values keep their defaults.
	if cfg.Timers.Button.D() != 100*time.Millisecond || cfg.Serial.Baud != 9600 {
		t.Errorf("defaults lost: %+v %+v", cfg.Timers, cfg.Serial)
	}
	if cfg.Limits[LeftSpeed].Max != 100 || cfg.Limits[RightSpeed].Max != 255 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.toml", "cfg.json"} {
		path := filepath.Join(t.TempDir(), name)
		cfg := DefaultConfig()
		cfg.Serial.Port = "/dev/ttyACM1"
		cfg.Timers.Feedback = Duration(75 * time.Millisecond)

		if err := cfg.SaveTo(path); err != nil {
			t.Fatalf("%s: SaveTo: %v", name, err)
		}
		got, err := LoadConfigFrom(path)
		if err != nil {
			t.Fatalf("%s: LoadConfigFrom: %v", name, err)
		}
		if got.Serial.Port != "/dev/ttyACM1" {
			t.Errorf("%s: serial port = %q", name, got.Serial.Port)
		}
		if got.Timers.Feedback.D() != 75*time.Millisecond {
			t.Errorf("%s: feedback = %v", name, got.Timers.Feedback.D())
		}
		if got.Network.Port != 12345 {
			t.Errorf("%s: network port = %d", name, got.Network.Port)
		}
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(EnvPort, "4000")
	t.Setenv(EnvReconnect, "false")
	t.Setenv(EnvSerialPort, "/dev/ttyUSB0")
	t.Setenv(EnvVariant, "drivetrain")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Network.Port != 4000 || cfg.Reconnect || cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Variant != "drivetrain" {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv(EnvPort, "not-a-port")
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("invalid port should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"variant", func(c *Config) { c.Variant = "hovercraft" }},
		{"role", func(c *Config) { c.Network.Role = "serve" }},
		{"transport", func(c *Config) { c.Network.Transport = "udp" }},
		{"port", func(c *Config) { c.Network.Port = 70000 }},
		{"tick", func(c *Config) { c.Timers.Tick = 0 }},
		{"command", func(c *Config) { c.Timers.Command = 0 }},
		{"telemetry", func(c *Config) { c.Timers.Encoder = Duration(-time.Second) }},
		{"baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"limits", func(c *Config) { c.Limits = Limits{LeftSpeed: {Min: 1, Max: 0}} }},
	}

	base := DefaultConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestTimerConfig_Telemetry(t *testing.T) {
	tc := DefaultConfig().Timers
	if tc.Telemetry("encoders") != 50*time.Millisecond {
		t.Errorf("encoders = %v", tc.Telemetry("encoders"))
	}
	if tc.Telemetry("feedback") != 0 {
		t.Errorf("feedback should be disabled by default")
	}
	if tc.Telemetry("nope") != 0 {
		t.Errorf("unknown exchange should be disabled")
	}
}

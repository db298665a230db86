package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gwillem/augerbot/pkg/link"
	"github.com/gwillem/augerbot/pkg/netmsg"
	"github.com/gwillem/augerbot/pkg/robot"
)

func TestParseSets(t *testing.T) {
	items, err := parseSets([]string{"left_speed=-40", " right_speed = 25.5", "direct_drive=true"})
	if err != nil {
		t.Fatalf("parseSets: %v", err)
	}
	got := string(netmsg.Encode(items...))
	want := `{"arr":[{"left_speed":-40},{"right_speed":25.5},{"direct_drive":true}]}`
	if got != want {
		t.Errorf("encoded = %s, want %s", got, want)
	}

	for _, bad := range []string{"left_speed", "=1", "left_speed=fast"} {
		if _, err := parseSets([]string{bad}); err == nil {
			t.Errorf("parseSets(%q) succeeded", bad)
		}
	}
}

func TestSendCommand_Message(t *testing.T) {
	tests := []struct {
		name string
		cmd  SendCommand
		want string
	}{
		{"batch", SendCommand{Set: []string{"auger_lift=1"}}, `{"arr":[{"auger_lift":1}]},`},
		{"stop", SendCommand{Stop: true}, `{"arr":[{"STOP":"STOP"}]},`},
		{"empty", SendCommand{Empty: true}, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.message()
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := (&SendCommand{}).message(); err == nil {
		t.Error("expected error with nothing to send")
	}
}

func TestRunCommand_Apply(t *testing.T) {
	cfg := robot.DefaultConfig()
	cmd := RunCommand{
		Variant:     "drivetrain",
		Port:        9000,
		Role:        "connect",
		Transport:   "ws",
		SerialPort:  "/dev/ttyUSB0",
		NoReconnect: true,
		Ack:         true,
	}
	if err := cmd.apply(&cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Variant != "drivetrain" || cfg.Network.Port != 9000 || cfg.Reconnect || !cfg.Network.Ack {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("serial port = %q", cfg.Serial.Port)
	}

	ep := endpointFor(cfg.Network)
	if ep.Role != link.RoleConnect || ep.Transport != link.TransportWS || ep.URL() != "ws://0.0.0.0:9000/control" {
		t.Errorf("endpoint = %+v", ep)
	}

	bad := RunCommand{Limits: filepath.Join(t.TempDir(), "missing.json")}
	if err := bad.apply(&cfg); err == nil {
		t.Error("expected error for missing limits file")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("AUGERBOT_PORT=4242\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv(robot.EnvPort, "")
	os.Unsetenv(robot.EnvPort)

	cfg, err := loadConfig(filepath.Join(dir, "missing.toml"), envFile)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Network.Port != 4242 {
		t.Errorf("port = %d, want 4242 from env file", cfg.Network.Port)
	}
	if cfg.Variant != robot.AugerBot.Name {
		t.Errorf("variant = %q, want defaults", cfg.Variant)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.toml"), filepath.Join(dir, "none.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestMergePorts(t *testing.T) {
	rows := mergePorts(
		[]string{"/dev/ttyS0", "/dev/ttyACM0", "/dev/cu.Bluetooth-Incoming-Port"},
		[]string{"/dev/ttyACM0", "/dev/ttyACM1"},
	)
	want := []portRow{
		{name: "/dev/ttyACM0", listed: true, opens: true},
		{name: "/dev/ttyACM1", opens: true},
		{name: "/dev/ttyS0", listed: true},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %+v, want %+v", rows, want)
	}
}

func TestFormatField(t *testing.T) {
	tests := []struct {
		spec robot.FieldSpec
		v    float64
		want string
	}{
		{robot.FieldSpec{Name: robot.LeftSpeed, Kind: robot.KindInt}, -40.7, "-40"},
		{robot.FieldSpec{Name: robot.AugerLift, Kind: robot.KindActuator}, 2, "REVERSE"},
		{robot.FieldSpec{Name: robot.DirectDrive, Kind: robot.KindToggle}, 5, "1"},
	}
	for _, tt := range tests {
		if got := formatField(tt.spec, tt.v); got != tt.want {
			t.Errorf("formatField(%s, %v) = %q, want %q", tt.spec.Name, tt.v, got, tt.want)
		}
	}
}

func TestDashboard_HasChange(t *testing.T) {
	m := dashboardModel{}
	cmds := map[robot.FieldName]float64{robot.LeftSpeed: 1}
	if !m.hasChange(cmds) {
		t.Error("first status should count as a change")
	}
	m.lastCommands = cmds
	if m.hasChange(map[robot.FieldName]float64{robot.LeftSpeed: 1}) {
		t.Error("identical commands reported as a change")
	}
	if !m.hasChange(map[robot.FieldName]float64{robot.LeftSpeed: 2}) {
		t.Error("changed commands not detected")
	}
}

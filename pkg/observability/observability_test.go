package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDefaultLogConfig_Env(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "false")

	cfg := DefaultLogConfig()
	if cfg.Level != zerolog.ErrorLevel || !cfg.NoColor || cfg.Timestamp {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("augerbot-test", &buf, LogConfig{Level: zerolog.InfoLevel, NoColor: true})
	logger.Debug().Msg("hidden")
	logger.Info().Str("frame", "<1,0,0>").Msg("sent")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, "sent") || !strings.Contains(out, "<1,0,0>") || !strings.Contains(out, "augerbot-test") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLineWriter(t *testing.T) {
	w := NewLineWriter(1)
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatal(err)
	}
	// Full channel drops without blocking.
	if n, err := w.Write([]byte("second\n")); err != nil || n != 7 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if got := <-w.Lines(); got != "first" {
		t.Errorf("line = %q", got)
	}
}

func TestRecordMetrics(t *testing.T) {
	before := testutil.ToFloat64(reconnects)
	RecordReconnect()
	if got := testutil.ToFloat64(reconnects); got != before+1 {
		t.Errorf("reconnects = %v, want %v", got, before+1)
	}

	RecordBatch(2, 1, 0, 3)
	if got := testutil.ToFloat64(items.WithLabelValues("applied")); got < 2 {
		t.Errorf("applied items = %v", got)
	}

	SetLinkState(3)
	if got := testutil.ToFloat64(linkState); got != 3 {
		t.Errorf("link state = %v", got)
	}
}

package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "serial",
			Name:      "frames_sent_total",
			Help:      "Frames written to the controller.",
		},
		[]string{"code", "forced"},
	)
	framesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "serial",
			Name:      "frames_failed_total",
			Help:      "Frames that could not be written to the controller.",
		},
		[]string{"code"},
	)
	telemetryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "serial",
			Name:      "telemetry_errors_total",
			Help:      "Telemetry exchanges that failed or returned undecodable frames.",
		},
		[]string{"exchange"},
	)
	batches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "control",
			Name:      "batches_total",
			Help:      "Command batches received from the control channel.",
		},
	)
	items = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "control",
			Name:      "items_total",
			Help:      "Command items by dispatch outcome.",
		},
		[]string{"outcome"},
	)
	segmentsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "control",
			Name:      "segments_skipped_total",
			Help:      "Malformed JSON segments discarded by the parser.",
		},
	)
	linkLosses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "link",
			Name:      "losses_total",
			Help:      "Control links that ended, by reason.",
		},
		[]string{"reason"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Receive tasks started after a link loss.",
		},
	)
	failsafes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "augerbot",
			Subsystem: "link",
			Name:      "failsafes_total",
			Help:      "Failsafe transitions that zeroed all commands.",
		},
	)
	linkState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "augerbot",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current connection state (0 disconnected, 1 listening, 2 connecting, 3 established, 4 closed).",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesFailed, telemetryErrors, batches, items,
			segmentsSkipped, linkLosses, reconnects, failsafes, linkState)
	})
}

func RecordFrameSent(code int, forced bool) {
	RegisterMetrics()
	framesSent.WithLabelValues(strconv.Itoa(code), strconv.FormatBool(forced)).Inc()
}

func RecordFrameFailed(code int) {
	RegisterMetrics()
	framesFailed.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordTelemetryError(exchange string) {
	RegisterMetrics()
	telemetryErrors.WithLabelValues(exchange).Inc()
}

func RecordBatch(applied, unknown, rejected, skipped int) {
	RegisterMetrics()
	batches.Inc()
	items.WithLabelValues("applied").Add(float64(applied))
	items.WithLabelValues("unknown").Add(float64(unknown))
	items.WithLabelValues("rejected").Add(float64(rejected))
	segmentsSkipped.Add(float64(skipped))
}

func RecordLinkLoss(reason string) {
	RegisterMetrics()
	linkLosses.WithLabelValues(reason).Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func RecordFailsafe() {
	RegisterMetrics()
	failsafes.Inc()
}

func SetLinkState(state int) {
	RegisterMetrics()
	linkState.Set(float64(state))
}

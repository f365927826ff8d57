package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	recordsDecoded    *prometheus.CounterVec
	signalsTotal      *prometheus.CounterVec
	reconnects        prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	eventsDropped     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	lastPrice         *prometheus.GaugeVec
	latency           *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		recordsDecoded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "micropulse_records_decoded_total",
				Help: "Total number of wire records decoded, by record type",
			},
			[]string{"rtype"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "micropulse_signals_total",
				Help: "Total number of signals emitted by the engines",
			},
			[]string{"engine", "ticker"},
		),
		reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "micropulse_reconnects_total",
				Help: "Total number of gateway reconnect attempts",
			},
		),
		heartbeatTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "micropulse_heartbeat_timeouts_total",
				Help: "Total number of sessions closed for heartbeat silence",
			},
		),
		eventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "micropulse_events_dropped_total",
				Help: "Total number of events dropped, by pipeline stage",
			},
			[]string{"stage"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "micropulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "micropulse_last_price",
				Help: "Last trade price seen for a ticker",
			},
			[]string{"ticker"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "micropulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecoded counts one decoded wire record.
func (r *Recorder) RecordDecoded(rtype string) {
	r.recordsDecoded.WithLabelValues(rtype).Inc()
}

// RecordSignal counts one emitted signal.
func (r *Recorder) RecordSignal(engine, ticker string) {
	r.signalsTotal.WithLabelValues(engine, ticker).Inc()
}

// RecordReconnect counts one reconnect attempt.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

// RecordHeartbeatTimeout counts one heartbeat-silence disconnect.
func (r *Recorder) RecordHeartbeatTimeout() {
	r.heartbeatTimeouts.Inc()
}

// RecordDropped counts one dropped event at a pipeline stage.
func (r *Recorder) RecordDropped(stage string) {
	r.eventsDropped.WithLabelValues(stage).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

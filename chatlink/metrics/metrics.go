// Package metrics records transport and upload counters with Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/upload"
)

const namespace = "chatlink"

// Recorder implements chatlink.Recorder and upload.Recorder on a
// private registry.
type Recorder struct {
	registry *prometheus.Registry

	ConnectionState    prometheus.Gauge
	ReconnectsTotal    *prometheus.CounterVec
	ReconnectDelay     prometheus.Histogram
	FramesSentTotal    prometheus.Counter
	FramesRecvTotal    *prometheus.CounterVec
	FramesDroppedTotal prometheus.Counter
	PollAttemptsTotal  *prometheus.CounterVec
	PollOutcomesTotal  *prometheus.CounterVec
	UploadBytesTotal   prometheus.Counter
}

var (
	_ chatlink.Recorder = (*Recorder)(nil)
	_ upload.Recorder   = (*Recorder)(nil)
)

// New registers all collectors, plus Go runtime collectors, on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled, by attempt number",
		}, []string{"attempt"}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay before each reconnect attempt",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		FramesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the socket",
		}),
		FramesRecvTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames delivered, by kind",
		}, []string{"kind"}),
		FramesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as malformed or binary",
		}),
		PollAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_poll_attempts_total",
			Help:      "Upload status fetches, by reported status",
		}, []string{"status"}),
		PollOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_poll_outcomes_total",
			Help:      "Terminal poll results, by outcome",
		}, []string{"outcome"}),
		UploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes streamed to the upload endpoint",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionState,
		r.ReconnectsTotal,
		r.ReconnectDelay,
		r.FramesSentTotal,
		r.FramesRecvTotal,
		r.FramesDroppedTotal,
		r.PollAttemptsTotal,
		r.PollOutcomesTotal,
		r.UploadBytesTotal,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) StateChanged(s chatlink.ConnectionState) {
	r.ConnectionState.Set(float64(s))
}

func (r *Recorder) ReconnectScheduled(attempt int, delay time.Duration) {
	r.ReconnectsTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
	r.ReconnectDelay.Observe(delay.Seconds())
}

func (r *Recorder) FrameSent() { r.FramesSentTotal.Inc() }

func (r *Recorder) FrameReceived(kind chatlink.FrameKind) {
	r.FramesRecvTotal.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) FrameDropped() { r.FramesDroppedTotal.Inc() }

func (r *Recorder) PollAttempt(status upload.Status) {
	label := string(status)
	if label == "" {
		label = "fetch_error"
	}
	r.PollAttemptsTotal.WithLabelValues(label).Inc()
}

func (r *Recorder) PollFinished(outcome string) {
	r.PollOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) UploadBytes(n int64) {
	r.UploadBytesTotal.Add(float64(n))
}

// Package monitor exposes stream and process metrics for Prometheus.
package monitor

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"roadstream/internal/logger"
	"roadstream/internal/service/alert"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
)

// Metrics owns a private registry. It implements stream.Observer.
type Metrics struct {
	registry *prometheus.Registry
	log      *logger.Logger
	proc     *process.Process

	memUsage      prometheus.Gauge
	cpuUsage      prometheus.Gauge
	activeStreams *prometheus.GaugeVec
	streamsTotal  *prometheus.CounterVec
	framesTotal   *prometheus.CounterVec
	frameSeconds  *prometheus.HistogramVec
	procErrors    *prometheus.CounterVec
	encodeErrors  *prometheus.CounterVec
	alertsTotal   *prometheus.CounterVec
	uploadsTotal  *prometheus.CounterVec
}

func NewMetrics(log *logger.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		log:      log,
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roadstream_memory_usage_megabytes",
			Help: "Resident memory of the server process in megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roadstream_cpu_usage_percent",
			Help: "CPU usage of the server process in percent",
		}),
		activeStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roadstream_active_streams",
			Help: "Streams currently being served",
		}, []string{"kind"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_streams_total",
			Help: "Streams opened since start",
		}, []string{"kind"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_frames_total",
			Help: "Frames emitted",
		}, []string{"kind"}),
		frameSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roadstream_frame_seconds",
			Help:    "Time from read to encoded frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		procErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_processing_errors_total",
			Help: "Frames passed through unannotated",
		}, []string{"kind"}),
		encodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_encode_errors_total",
			Help: "Frames skipped because encoding failed",
		}, []string{"kind"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_alerts_total",
			Help: "Frames that raised an alert",
		}, []string{"kind"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadstream_uploads_total",
			Help: "Accepted video uploads",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.memUsage, m.cpuUsage,
		m.activeStreams, m.streamsTotal, m.framesTotal, m.frameSeconds,
		m.procErrors, m.encodeErrors, m.alertsTotal, m.uploadsTotal,
	)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warning("process metrics unavailable: %v", err)
	} else {
		m.proc = proc
	}
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GaugeFunc registers a gauge whose value is read on every scrape.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// CounterFunc registers a counter whose value is read on every scrape. fn
// must never decrease.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn))
}

// HubStats is implemented by websocket.HubService.
type HubStats interface {
	GetClientCount() int
	Dropped() int64
}

// WatchHub exports the alert websocket hub's viewers and dropped broadcasts.
func (m *Metrics) WatchHub(h HubStats) {
	m.GaugeFunc("roadstream_alert_subscribers", "Connected alert websocket viewers",
		func() float64 { return float64(h.GetClientCount()) })
	m.CounterFunc("roadstream_alert_broadcasts_dropped_total", "Alert broadcasts dropped on a full hub queue",
		func() float64 { return float64(h.Dropped()) })
}

// MQTTStats is implemented by alert.MQTTNotifier.
type MQTTStats interface {
	Stats() alert.MQTTStats
}

// WatchMQTT exports the MQTT alert publisher's connection and counters.
func (m *Metrics) WatchMQTT(n MQTTStats) {
	m.GaugeFunc("roadstream_mqtt_connected", "1 while the MQTT broker connection is up",
		func() float64 {
			if n.Stats().Connected {
				return 1
			}
			return 0
		})
	m.CounterFunc("roadstream_mqtt_published_total", "Alert events published to MQTT",
		func() float64 { return float64(n.Stats().Published) })
	m.CounterFunc("roadstream_mqtt_errors_total", "Alert events that failed to publish to MQTT",
		func() float64 { return float64(n.Stats().Errors) })
}

func (m *Metrics) StreamOpened(kind string) {
	m.streamsTotal.WithLabelValues(kind).Inc()
	m.activeStreams.WithLabelValues(kind).Inc()
}

func (m *Metrics) StreamClosed(kind string) {
	m.activeStreams.WithLabelValues(kind).Dec()
}

func (m *Metrics) FrameEmitted(kind string, took time.Duration) {
	m.framesTotal.WithLabelValues(kind).Inc()
	m.frameSeconds.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) ProcessingError(kind string) { m.procErrors.WithLabelValues(kind).Inc() }

func (m *Metrics) EncodeError(kind string) { m.encodeErrors.WithLabelValues(kind).Inc() }

func (m *Metrics) Alert(kind string) { m.alertsTotal.WithLabelValues(kind).Inc() }

// Upload counts an accepted upload.
func (m *Metrics) Upload(kind string) { m.uploadsTotal.WithLabelValues(kind).Inc() }

// Sample refreshes the process gauges once.
func (m *Metrics) Sample() {
	if m.proc == nil {
		return
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(mem.RSS / 1024 / 1024))
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpu*100) / 100)
	}
}

// Run samples the process gauges every interval until ctx is done.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

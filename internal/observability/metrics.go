package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StageRoute           = "route_total"
	StageTranslatePrefix = "translate:"
)

// Metrics groups all Prometheus instruments used by the relay. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	ConnectionEvents   *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	DroppedFrames      *prometheus.CounterVec
	PresenceBroadcasts prometheus.Counter
	Deliveries         *prometheus.CounterVec
	Translations       *prometheus.CounterVec
	TranslationLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	window   *latencyWindow
}

// NewMetrics registers instruments on reg, or on the default registry when
// reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of authenticated websocket connections.",
		}),
		ConnectionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		DroppedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Inbound frames discarded without processing, by reason.",
		}, []string{"reason"}),
		PresenceBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_broadcasts_total",
			Help:      "Roster broadcasts published.",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound deliveries by kind and result.",
		}, []string{"kind", "result"}),
		Translations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation gateway calls by target language and result.",
		}, []string{"lang", "result"}),
		TranslationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_ms",
			Help:      "Translation gateway latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 800, 1200, 2000, 5000},
		}, []string{"lang"}),
		gatherer: gatherer,
		window:   newLatencyWindow(256),
	}
}

func (m *Metrics) ConnectionEvent(event string) {
	if m == nil {
		return
	}
	m.ConnectionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveConnections(n int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *Metrics) ObserveMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) DropFrame(reason string) {
	if m == nil {
		return
	}
	m.DroppedFrames.WithLabelValues(reason).Inc()
	m.window.ObserveIndicator("dropped_" + reason)
}

func (m *Metrics) ObservePresence() {
	if m == nil {
		return
	}
	m.PresenceBroadcasts.Inc()
}

func (m *Metrics) ObserveDelivery(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Deliveries.WithLabelValues(kind, result).Inc()
}

// ObserveTranslation records one gateway call. fellBack is true when the
// group received the original text.
func (m *Metrics) ObserveTranslation(lang string, d time.Duration, fellBack bool) {
	if m == nil {
		return
	}
	result := "ok"
	if fellBack {
		result = "fallback"
		m.window.ObserveIndicator("translation_fallback")
	}
	m.Translations.WithLabelValues(lang, result).Inc()
	ms := float64(d.Microseconds()) / 1000
	m.TranslationLatency.WithLabelValues(lang).Observe(ms)
	m.window.Observe(StageTranslatePrefix+lang, d)
}

func (m *Metrics) ObserveRoute(d time.Duration) {
	if m == nil {
		return
	}
	m.window.Observe(StageRoute, d)
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}, Indicators: []Indicator{}}
	}
	return m.window.Snapshot()
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return MetricsHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// MetricsConfig configures the Prometheus collectors of a server.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "obsidium").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegisterer sets the Prometheus registerer.
func WithRegisterer(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the Prometheus collectors of a server.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	playersOnline     prometheus.Gauge
	packetsReceived   *prometheus.CounterVec
	packetsSent       *prometheus.CounterVec
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	connectionErrors  *prometheus.CounterVec
	loginDuration     prometheus.Histogram
}

// NewMetrics registers the server collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "obsidium",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	ns, labels := config.Namespace, config.ConstLabels

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "connections_active",
			Help:        "Number of open connections",
			ConstLabels: labels,
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "connections_total",
			Help:        "Total number of accepted connections",
			ConstLabels: labels,
		}),
		playersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "players_online",
			Help:        "Number of connections in the session directory",
			ConstLabels: labels,
		}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "packets_received_total",
			Help:        "Packets decoded, by connection state",
			ConstLabels: labels,
		}, []string{"state"}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "packets_sent_total",
			Help:        "Packets written, by connection state",
			ConstLabels: labels,
		}, []string{"state"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "bytes_received_total",
			Help:        "Packet bytes received, after decompression",
			ConstLabels: labels,
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "bytes_sent_total",
			Help:        "Packet bytes written, before compression",
			ConstLabels: labels,
		}),
		connectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "connection_errors_total",
			Help:        "Connections ended by an error, by error kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		loginDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "login_duration_seconds",
			Help:        "Time from handshake to entering play",
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}),
	}
}

// A nil *Metrics records nothing.

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) playerJoined(loginTime time.Duration) {
	if m == nil {
		return
	}
	m.playersOnline.Inc()
	m.loginDuration.Observe(loginTime.Seconds())
}

func (m *Metrics) playerLeft() {
	if m == nil {
		return
	}
	m.playersOnline.Dec()
}

func (m *Metrics) packetReceived(state protocol.State, frameBytes int) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(state.String()).Inc()
	m.bytesReceived.Add(float64(frameBytes))
}

func (m *Metrics) packetSent(state protocol.State, frameBytes int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(state.String()).Inc()
	m.bytesSent.Add(float64(frameBytes))
}

func (m *Metrics) connError(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.connectionErrors.WithLabelValues(kind.String()).Inc()
}

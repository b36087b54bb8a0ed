package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics метрики клиентов потоков и сетки.
// Только низкая кардинальность: без меток camera_id.
// Все методы безопасны для nil получателя.
type Metrics struct {
	registry *prometheus.Registry

	connectionsOpened prometheus.Counter
	connectionsActive prometheus.Gauge
	reconnects        prometheus.Counter
	framesReceived    prometheus.Counter
	messagesDropped   prometheus.Counter
	stateTransitions  *prometheus.CounterVec
	tilesActive       prometheus.Gauge
}

// New создает метрики в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cv_stream_connections_opened_total",
			Help: "Total stream connections attempted",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cv_stream_connections_active",
			Help: "Currently open stream sockets",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cv_stream_reconnects_total",
			Help: "Total automatic reconnect attempts",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cv_stream_frames_received_total",
			Help: "Total frames received across all tiles",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cv_stream_messages_dropped_total",
			Help: "Stream messages that failed to decode",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cv_stream_state_transitions_total",
			Help: "Connection state transitions by target state",
		}, []string{"state"}),
		tilesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cv_grid_tiles_active",
			Help: "Tiles with a stream client on the current page",
		}),
	}

	m.registry.MustRegister(
		m.connectionsOpened,
		m.connectionsActive,
		m.reconnects,
		m.framesReceived,
		m.messagesDropped,
		m.stateTransitions,
		m.tilesActive,
	)

	return m
}

// Handler возвращает HTTP обработчик экспозиции
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry возвращает реестр (для тестов и дополнительных коллекторов)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Inc()
}

func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *Metrics) StateTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) SetTilesActive(n int) {
	if m == nil {
		return
	}
	m.tilesActive.Set(float64(n))
}

// monitor/monitor.go
package monitor

import (
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/rpsarena/logger"
)

type Metrics struct {
	OnlinePlayers        prometheus.Gauge
	ActiveRooms          prometheus.Gauge
	RoundsResolved       prometheus.Counter
	DuplicateResolutions prometheus.Counter
	PartialFailures      *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	Repairs              *prometheus.CounterVec
	MessagesReceived     prometheus.Counter
	MessageLatency       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of online players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms in the store",
		}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Rounds whose results were written",
		}),
		DuplicateResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_resolutions_total",
			Help:      "Resolution attempts skipped because results were already set",
		}),
		PartialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_failures_total",
			Help:      "Multi-document mutations that failed part way",
		}, []string{"op"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications written by type",
		}, []string{"type"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Inconsistencies repaired by the reconcile sweeper",
		}, []string{"kind"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.RoundsResolved,
		m.DuplicateResolutions,
		m.PartialFailures,
		m.NotificationsSent,
		m.Repairs,
		m.MessagesReceived,
		m.MessageLatency,
	)

	return m
}

// Monitor wraps the metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

var publishOnce sync.Once

// Handler serves this monitor's registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics and /debug/vars on addr in the background.
func (m *Monitor) StartServer(addr string) *http.Server {
	// expvar names are process global
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))

		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("metrics server on %s stopped: %v", addr, err)
		}
	}()
	return srv
}

func (m *Monitor) SetOnlinePlayers(count int) {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Set(float64(count))
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncRoundsResolved() {
	if m == nil {
		return
	}
	m.metrics.RoundsResolved.Inc()
}

func (m *Monitor) IncDuplicateResolutions() {
	if m == nil {
		return
	}
	m.metrics.DuplicateResolutions.Inc()
}

func (m *Monitor) IncPartialFailure(op string) {
	if m == nil {
		return
	}
	m.metrics.PartialFailures.WithLabelValues(op).Inc()
}

func (m *Monitor) IncNotificationSent(kind string) {
	if m == nil {
		return
	}
	m.metrics.NotificationsSent.WithLabelValues(kind).Inc()
}

func (m *Monitor) IncRepair(kind string) {
	if m == nil {
		return
	}
	m.metrics.Repairs.WithLabelValues(kind).Inc()
}

func (m *Monitor) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

package subbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/dshills/subbus/internal/config"
)

// Delivery outcome label values.
const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomePanic    = "panic"
	outcomeDeclined = "declined"
)

// metrics holds the prometheus collectors of a bus. The collectors always
// count; they are only visible once registered.
type metrics struct {
	posted     prometheus.Counter
	deliveries *prometheus.CounterVec
	duration   prometheus.Histogram
	purged     prometheus.Counter
	retained   prometheus.Counter
	replayed   prometheus.Counter

	subscriptions prometheus.GaugeFunc
	pending       prometheus.GaugeFunc

	registerer prometheus.Registerer
	registered []prometheus.Collector
}

func newMetrics(cfg config.MetricsConfig, subscriptions, pending func() float64) *metrics {
	ns, sub := cfg.Namespace, cfg.Subsystem
	return &metrics{
		posted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_posted_total",
			Help:      "Total events posted",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "deliveries_total",
			Help:      "Total handler invocations by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "subscriptions_purged_total",
			Help:      "Total subscriptions dropped because their subscriber was garbage collected",
		}),
		retained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_retained_total",
			Help:      "Total persistent events buffered unhandled",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_replayed_total",
			Help:      "Total buffered events replayed to new subscribers",
		}),
		subscriptions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "subscriptions",
			Help:      "Current number of subscriptions",
		}, subscriptions),
		pending: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "pending_events",
			Help:      "Current number of buffered persistent events",
		}, pending),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.posted, m.deliveries, m.duration, m.purged,
		m.retained, m.replayed, m.subscriptions, m.pending,
	}
}

// register adds every collector to reg. On failure nothing stays registered.
func (m *metrics) register(reg prometheus.Registerer) error {
	var errs error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		m.registered = append(m.registered, c)
	}
	m.registerer = reg
	if errs != nil {
		m.unregister()
		return errs
	}
	return nil
}

// unregister removes whatever register added.
func (m *metrics) unregister() {
	if m.registerer == nil {
		return
	}
	for _, c := range m.registered {
		m.registerer.Unregister(c)
	}
	m.registered = nil
	m.registerer = nil
}

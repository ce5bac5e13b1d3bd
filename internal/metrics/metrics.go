package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries the service's prometheus collectors. A nil *Metrics is a
// no-op on every method, so components can be built without one in tests.
type Metrics struct {
	outcomes   *prometheus.CounterVec
	duration   prometheus.Histogram
	priceCache *prometheus.CounterVec
}

// New registers the collectors on the default registry; call it once per
// process.
func New() *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Subsystem: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nimbus",
			Subsystem: "checkout",
			Name:      "duration_seconds",
			Help:      "End-to-end checkout pipeline duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		priceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Subsystem: "pricing",
			Name:      "price_cache_lookups_total",
			Help:      "Price fact cache lookups by result.",
		}, []string{"result"}),
	}
	prometheus.MustRegister(m.outcomes, m.duration, m.priceCache)
	return m
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCheckout(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) PriceLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.priceCache.WithLabelValues(result).Inc()
}

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

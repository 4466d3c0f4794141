package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Quote outcomes recorded by QuoteTotal.
const (
	QuoteResultCacheHit  = "cache_hit"
	QuoteResultComputed  = "computed"
	QuoteResultInvalid   = "invalid"
	QuoteResultForbidden = "forbidden"
	QuoteResultNotFound  = "not_found"
	QuoteResultError     = "error"
)

// Cache events recorded by CacheEventsTotal.
const (
	CacheEventHit   = "hit"
	CacheEventMiss  = "miss"
	CacheEventWrite = "write"
	CacheEventError = "error"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts quote requests by outcome.
	QuoteTotal *prometheus.CounterVec
	// QuoteLatency records quote computation latency in milliseconds.
	QuoteLatency *prometheus.HistogramVec
	// CacheEventsTotal counts server side quote cache events.
	CacheEventsTotal *prometheus.CounterVec
	// InvalidationsTotal counts product invalidations by triggering topic.
	InvalidationsTotal *prometheus.CounterVec
	// InvalidatedKeysTotal counts cache keys removed by invalidation.
	InvalidatedKeysTotal prometheus.Counter
)

// MustRegisterPricingMetrics initialises and registers pricing Prometheus collectors.
func MustRegisterPricingMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quote_total",
			Help:      "Count of quote requests by outcome.",
		}, []string{"result"})
		QuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_quote_duration_ms",
			Help:      "Quote latency in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"result"})
		CacheEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_cache_events_total",
			Help:      "Count of quote cache events.",
		}, []string{"event"})
		InvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_invalidations_total",
			Help:      "Count of product cache invalidations by source topic.",
		}, []string{"source"})
		InvalidatedKeysTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_invalidated_keys_total",
			Help:      "Number of cached quotes removed by invalidation.",
		})

		mustRegisterCollector(reg, QuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				QuoteLatency = v
			}
		})
		mustRegisterCollector(reg, CacheEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CacheEventsTotal = v
			}
		})
		mustRegisterCollector(reg, InvalidationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvalidationsTotal = v
			}
		})
		mustRegisterCollector(reg, InvalidatedKeysTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InvalidatedKeysTotal = v
			}
		})
	})
}

// ObserveQuote records a quote outcome. It is a no-op before registration.
func ObserveQuote(result string, millis float64) {
	if QuoteTotal != nil {
		QuoteTotal.WithLabelValues(result).Inc()
	}
	if QuoteLatency != nil {
		QuoteLatency.WithLabelValues(result).Observe(millis)
	}
}

// ObserveCacheEvent records a quote cache event.
func ObserveCacheEvent(event string) {
	if CacheEventsTotal != nil {
		CacheEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveInvalidation records an invalidation and the number of keys it removed.
func ObserveInvalidation(source string, removed int) {
	if InvalidationsTotal != nil {
		InvalidationsTotal.WithLabelValues(source).Inc()
	}
	if InvalidatedKeysTotal != nil && removed > 0 {
		InvalidatedKeysTotal.Add(float64(removed))
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

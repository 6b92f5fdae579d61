package compiler

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	planHits      prometheus.Counter
	planMisses    prometheus.Counter
	commandHits   prometheus.Counter
	commandMisses prometheus.Counter
	failures      *prometheus.CounterVec
	duration      prometheus.Histogram
}

// newMetrics creates the compiler's collectors and registers them with reg
// when it is non-nil.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	cache := func(name, result string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "relq",
			Subsystem:   "compiler",
			Name:        name + "_cache_lookups_total",
			Help:        "Lookups in the " + name + " cache, by result.",
			ConstLabels: prometheus.Labels{"result": result},
		})
	}
	m := &metrics{
		planHits:      cache("plan", "hit"),
		planMisses:    cache("plan", "miss"),
		commandHits:   cache("command", "hit"),
		commandMisses: cache("command", "miss"),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relq",
			Subsystem: "compiler",
			Name:      "rejected_queries_total",
			Help:      "Queries that failed to compile, by error code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relq",
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Time to compile a query, including cache lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.planHits, m.planMisses, m.commandHits, m.commandMisses, m.failures, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

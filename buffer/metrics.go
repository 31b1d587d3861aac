package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bufferpool cache activity. Pass a nil registerer to keep the
// counters unregistered, e.g. in tests.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Flushes   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bufferpool_hits_total",
			Help: "Page requests served from a resident frame.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bufferpool_misses_total",
			Help: "Page requests that had to load from disk.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bufferpool_evictions_total",
			Help: "Frames reclaimed from the replacement policy.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bufferpool_flushes_total",
			Help: "Dirty pages written back to disk.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Flushes)
	}
	return m
}

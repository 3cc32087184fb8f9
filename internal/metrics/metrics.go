// Package metrics exposes Prometheus instrumentation for tile loading and capture.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tile request outcomes.
const (
	OutcomeLoaded    = "loaded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeStale     = "stale"
)

// CaptureDurationBuckets covers in-memory composition of typical viewport sizes.
var CaptureDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}

// Tiles holds the collectors for one viewer. A nil *Tiles is valid and records nothing.
type Tiles struct {
	Requests        *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEvictions  prometheus.Counter
	ResidentTiles   prometheus.Gauge
	PendingRequests prometheus.Gauge
	CaptureDuration prometheus.Histogram
}

// NewTiles creates the collectors and registers them with reg.
// constLabels distinguishes several viewers sharing one registry.
func NewTiles(reg prometheus.Registerer, constLabels prometheus.Labels) (*Tiles, error) {
	m := &Tiles{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "requests_total",
			Help:        "Tile requests by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "cache_hits_total",
			Help:        "Visible tiles served from the cache.",
			ConstLabels: constLabels,
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "cache_misses_total",
			Help:        "Visible tiles that had to be requested.",
			ConstLabels: constLabels,
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "cache_evictions_total",
			Help:        "Tiles evicted from the cache.",
			ConstLabels: constLabels,
		}),
		ResidentTiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "resident",
			Help:        "Decoded tiles currently held in the cache.",
			ConstLabels: constLabels,
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "slidescope",
			Subsystem:   "tiles",
			Name:        "pending",
			Help:        "Tile requests in flight.",
			ConstLabels: constLabels,
		}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "slidescope",
			Subsystem:   "capture",
			Name:        "duration_seconds",
			Help:        "Time spent composing a screenshot.",
			Buckets:     CaptureDurationBuckets,
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Requests, m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.ResidentTiles, m.PendingRequests, m.CaptureDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request records the outcome of one tile request.
func (m *Tiles) Request(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// Hit records a cache hit.
func (m *Tiles) Hit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// Miss records a cache miss.
func (m *Tiles) Miss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// Evicted records a cache eviction.
func (m *Tiles) Evicted() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// SetResident sets the resident tile gauge.
func (m *Tiles) SetResident(n int) {
	if m == nil {
		return
	}
	m.ResidentTiles.Set(float64(n))
}

// SetPending sets the in-flight request gauge.
func (m *Tiles) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// ObserveCapture records how long a capture took.
func (m *Tiles) ObserveCapture(d time.Duration) {
	if m == nil {
		return
	}
	m.CaptureDuration.Observe(d.Seconds())
}

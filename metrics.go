package rdiff

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	files        *prometheus.CounterVec
	sourceBytes  prometheus.Counter
	destBytes    prometheus.Counter
	matchedBytes prometheus.Counter
	lookups      *prometheus.CounterVec
	duration     prometheus.Histogram
}

// register adds c to reg, or returns the collector already registered under the same
// name, so that several Differs can share a registry
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError

		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}

		return c, errors.Wrap(err, "registering metrics")
	}

	return c, nil
}

// newMetrics registers on reg. A nil reg keeps the metrics private.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	var (
		m   metrics
		err error
	)

	if m.files, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiff_files_total",
			Help: "Files diffed, by result",
		},
		[]string{"result"},
	)); err != nil {
		return nil, err
	}

	if m.sourceBytes, err = register(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdiff_source_bytes_total",
			Help: "Bytes of source files indexed",
		},
	)); err != nil {
		return nil, err
	}

	if m.destBytes, err = register(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdiff_destination_bytes_total",
			Help: "Bytes of destination files scanned",
		},
	)); err != nil {
		return nil, err
	}

	if m.matchedBytes, err = register(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdiff_matched_bytes_total",
			Help: "Bytes of destination files found in their source",
		},
	)); err != nil {
		return nil, err
	}

	if m.lookups, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdiff_checksum_lookups_total",
			Help: "Windows looked up in an index, by how far the lookup got",
		},
		[]string{"stage"},
	)); err != nil {
		return nil, err
	}

	if m.duration, err = register(reg, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rdiff_file_duration_seconds",
			Help:    "Time to index and match a single file",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *metrics) observe(r *FileDiffResult, elapsed time.Duration) {
	switch {
	case r.Err != nil:
		m.files.WithLabelValues("failed").Inc()
	case !r.DestExists:
		m.files.WithLabelValues("new").Inc()
	default:
		m.files.WithLabelValues("matched").Inc()
	}

	m.sourceBytes.Add(float64(r.SourceSize))
	m.destBytes.Add(float64(r.DestSize))
	m.matchedBytes.Add(float64(r.MatchedBytes))

	m.lookups.WithLabelValues("comparison").Add(float64(r.Stats.Comparisons))
	m.lookups.WithLabelValues("weak").Add(float64(r.Stats.WeakHashHits))
	m.lookups.WithLabelValues("strong").Add(float64(r.Stats.StrongHashHits))

	m.duration.Observe(elapsed.Seconds())
}

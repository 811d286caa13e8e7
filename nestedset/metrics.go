package nestedset

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arbor_mutations_total",
	Help: "Number of tree mutations by operation and result",
}, []string{"op", "result"})

var mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "arbor_mutation_duration_seconds",
	Help:    "Duration of tree mutations including their transaction",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
}, []string{"op"})

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, ErrStaleNode):
		return "stale"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	}
	return "error"
}

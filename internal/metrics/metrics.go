// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/gtpstamp/internal/core"
)

var (
	// PacketsTotal counts packets by classifier decision
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtpstamp_packets_total",
			Help: "Total number of packets classified",
		},
		[]string{"class"},
	)

	// VerdictsTotal counts verdicts returned to the interception point
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtpstamp_verdicts_total",
			Help: "Total number of verdicts issued",
		},
		[]string{"verdict"},
	)

	// StampedTotal counts trailer entries appended
	StampedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gtpstamp_stamped_total",
			Help: "Total number of trailer entries appended",
		},
	)

	// EntryCount tracks the entry count carried by stamped packets
	EntryCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gtpstamp_entry_count",
			Help:    "Number of trailer entries in a packet after stamping",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	// MalformedTotal counts flagged packets passed through untouched
	MalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gtpstamp_malformed_total",
			Help: "Total number of flagged packets with inconsistent headers",
		},
	)

	// BufferErrorsTotal counts buffer failures by stage; each one is a drop
	BufferErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtpstamp_buffer_errors_total",
			Help: "Total number of packet buffer errors",
		},
		[]string{"stage"},
	)

	// QueueErrorsTotal counts netlink errors per queue
	QueueErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtpstamp_queue_errors_total",
			Help: "Total number of queue receive or verdict errors",
		},
		[]string{"queue"},
	)
)

// Observer feeds stamper outcomes into the package counters.
type Observer struct{}

func (Observer) Classified(class core.Class) {
	PacketsTotal.WithLabelValues(class.String()).Inc()
}

func (Observer) Stamped(count uint8) {
	StampedTotal.Inc()
	EntryCount.Observe(float64(count))
}

func (Observer) Malformed(error) {
	MalformedTotal.Inc()
}

func (Observer) BufferFailed(stage string, _ error) {
	BufferErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordVerdict counts one verdict.
func RecordVerdict(v core.Verdict) {
	VerdictsTotal.WithLabelValues(v.String()).Inc()
}

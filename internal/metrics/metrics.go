// Package metrics exposes Prometheus counters for the booking core.
// Counters are always updated; they are only served when metrics are enabled.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtdesk"

var (
	once sync.Once

	reservationWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_writes_total",
			Help:      "Reservation writes by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	ledgerRowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_written_total",
			Help:      "Ledger rows inserted by tender.",
		},
		[]string{"tender"},
	)

	ledgerDrift = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_drift_detected_total",
			Help:      "Reservations whose ledger rows disagreed with their split during an audit.",
		},
	)

	aggregateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Time spent computing window aggregates.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	staleAggregates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_stale_discarded_total",
			Help:      "Aggregate results discarded because a newer request superseded them.",
		},
	)
)

// Register registers metrics with the default registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationWrites, ledgerRowsWritten, ledgerDrift, aggregateDuration, staleAggregates)
	})
}

func IncReservationWrite(op, outcome string) {
	reservationWrites.WithLabelValues(op, outcome).Inc()
}

func AddLedgerRows(tender string, n int) {
	ledgerRowsWritten.WithLabelValues(tender).Add(float64(n))
}

func AddLedgerDrift(n int) {
	ledgerDrift.Add(float64(n))
}

func ObserveAggregate(kind string, started time.Time) {
	aggregateDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func IncStaleAggregate() {
	staleAggregates.Inc()
}

var feedOnce sync.Once

// RegisterFeed exposes live change feed gauges read from the hub on scrape.
func RegisterFeed(subscribers func() int, dropped func() int64) {
	feedOnce.Do(func() {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_subscribers",
				Help:      "Open change feed subscriptions.",
			}, func() float64 { return float64(subscribers()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_dropped_total",
				Help:      "Notifications dropped because a subscriber buffer was full.",
			}, func() float64 { return float64(dropped()) }),
		)
	})
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(reservationWrites.WithLabelValues("create", "ok"))
	IncReservationWrite("create", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(reservationWrites.WithLabelValues("create", "ok")))

	beforeRows := testutil.ToFloat64(ledgerRowsWritten.WithLabelValues("cash"))
	AddLedgerRows("cash", 2)
	assert.Equal(t, beforeRows+2, testutil.ToFloat64(ledgerRowsWritten.WithLabelValues("cash")))

	beforeStale := testutil.ToFloat64(staleAggregates)
	IncStaleAggregate()
	assert.Equal(t, beforeStale+1, testutil.ToFloat64(staleAggregates))

	ObserveAggregate("summary", time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(aggregateDuration))
}

func TestRegisterFeed(t *testing.T) {
	RegisterFeed(func() int { return 3 }, func() int64 { return 7 })
	RegisterFeed(func() int { return 0 }, func() int64 { return 0 })

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["courtdesk_feed_subscribers"])
	assert.Equal(t, 7.0, values["courtdesk_feed_dropped_total"])
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCrawlCounters(t *testing.T) {
	indexed := crawlAttempts.WithLabelValues("indexed")
	indexedBefore := testutil.ToFloat64(indexed)
	bytesBefore := testutil.ToFloat64(fetchedBytes)

	ObserveCrawl("indexed")
	ObserveCrawl("indexed")
	ObserveFetch(512)
	ObserveFetch(0)

	require.InDelta(t, indexedBefore+2, testutil.ToFloat64(indexed), 0)
	require.InDelta(t, bytesBefore+512, testutil.ToFloat64(fetchedBytes), 0)
	require.Equal(t, 1, testutil.CollectAndCount(fetchedBytes))
}

func TestInFlightGauge(t *testing.T) {
	before := testutil.ToFloat64(crawlsInFlight)
	IncInFlight()
	IncInFlight()
	require.InDelta(t, before+2, testutil.ToFloat64(crawlsInFlight), 0)
	DecInFlight()
	DecInFlight()
	require.InDelta(t, before, testutil.ToFloat64(crawlsInFlight), 0)
}

func TestRobotsAndSearch(t *testing.T) {
	none := robotsLookups.WithLabelValues("none")
	before := testutil.ToFloat64(none)

	ObserveRobots("none")
	ObserveSearch(20 * time.Millisecond)

	require.InDelta(t, before+1, testutil.ToFloat64(none), 0)
	require.Positive(t, testutil.CollectAndCount(searchLatency))
}

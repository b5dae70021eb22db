package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsCollectorWithRegistry_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("testns", reg)
	require.NotNil(t, m)

	m.ObserveSearch(10*time.Millisecond, 3, nil)
	m.ObserveIndex(50*time.Millisecond, 7, nil)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestObserveSearch_RecordsOkOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("testns", reg)

	m.ObserveSearch(5*time.Millisecond, 4, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("ok")))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(resultsPerCallExposition(1)), "testns_search_results_per_call"))
}

// resultsPerCallExposition is the expected text exposition of the
// results-per-call histogram after count observations of the value 4.
// testutil.ToFloat64 reads only gauges, counters and untyped metrics, so
// the histogram is compared through its exposition.
func resultsPerCallExposition(count int) string {
	return fmt.Sprintf(`# HELP testns_search_results_per_call Number of results returned per search call.
# TYPE testns_search_results_per_call histogram
testns_search_results_per_call_bucket{le="0"} 0
testns_search_results_per_call_bucket{le="1"} 0
testns_search_results_per_call_bucket{le="5"} %[1]d
testns_search_results_per_call_bucket{le="10"} %[1]d
testns_search_results_per_call_bucket{le="25"} %[1]d
testns_search_results_per_call_bucket{le="50"} %[1]d
testns_search_results_per_call_bucket{le="100"} %[1]d
testns_search_results_per_call_bucket{le="+Inf"} %[1]d
testns_search_results_per_call_sum %[2]d
testns_search_results_per_call_count %[1]d
`, count, 4*count)
}

func TestObserveSearch_RecordsErrorOutcomeAndSkipsResultCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("testns", reg)

	m.ObserveSearch(5*time.Millisecond, 4, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("error")))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(resultsPerCallExposition(0)), "testns_search_results_per_call"))
}

func TestObserveIndex_AccumulatesIndexedFiles(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("testns", reg)

	m.ObserveIndex(time.Second, 10, nil)
	m.ObserveIndex(time.Second, 5, nil)

	assert.Equal(t, float64(15), testutil.ToFloat64(m.IndexedFilesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IndexRunsTotal.WithLabelValues("ok")))
}

func TestNewMetricsCollector_DefaultsNamespace(t *testing.T) {
	// Uses a fresh registry to avoid colliding with the process-wide
	// default registerer other tests in this binary may have already used.
	m := NewMetricsCollectorWithRegistry("", prometheus.NewRegistry())
	require.NotNil(t, m.SearchRequestsTotal)
}

package metricsx

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheCountersTrackHitsAndMisses(t *testing.T) {
	IncCacheHit("categories")
	IncCacheHit("categories")
	IncCacheMiss("categories")

	if got := testutil.ToFloat64(cacheHits.WithLabelValues("categories")); got != 2 {
		t.Fatalf("got %v hits, want 2", got)
	}
	if got := testutil.ToFloat64(cacheMisses.WithLabelValues("categories")); got != 1 {
		t.Fatalf("got %v misses, want 1", got)
	}
}

package aggregate

import (
	"math"
	"testing"

	"saleswatch/internal/persist"
	"saleswatch/internal/store"
)

func newFixture(t *testing.T, maxDays, memoryDays, cacheSize int) (*store.Store, *Service) {
	t.Helper()
	ts, err := store.New(maxDays, memoryDays, persist.NewStore(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	svc, err := New(ts, cacheSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ts, svc
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Two completed days: day 0 holds (apple,2,1.00) and (apple,3,2.00), day 1
// holds (apple,1,5.00).
func seedTwoDays(t *testing.T, ts *store.Store) {
	t.Helper()
	ts.AddEvent("apple", 2, 1.00)
	ts.AddEvent("apple", 3, 2.00)
	ts.NewDay()
	ts.AddEvent("apple", 1, 5.00)
	ts.NewDay()
}

func TestWindowAggregations(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 3, 3, 16)
	seedTwoDays(t, ts)

	if got := svc.QuantitySold("apple", 2); got != 6 {
		t.Fatalf("QuantitySold = %d, want 6", got)
	}
	if got := svc.SalesVolume("apple", 2); !almostEqual(got, 13.00) {
		t.Fatalf("SalesVolume = %v, want 13.00", got)
	}
	if got := svc.AveragePrice("apple", 2); !almostEqual(got, 13.00/6) {
		t.Fatalf("AveragePrice = %v, want %v", got, 13.00/6)
	}
	if got := svc.MaxPrice("apple", 2); !almostEqual(got, 5.00) {
		t.Fatalf("MaxPrice = %v, want 5.00", got)
	}
}

func TestInsufficientData(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 3, 3, 16)
	seedTwoDays(t, ts) // 2 completed days

	if got := svc.QuantitySold("apple", 3); got != Insufficient {
		t.Fatalf("QuantitySold over 3 days = %d, want %d", got, Insufficient)
	}
	if got := svc.SalesVolume("apple", 3); got != Insufficient {
		t.Fatalf("SalesVolume over 3 days = %v, want %d", got, Insufficient)
	}
	if got := svc.QuantitySold("apple", 0); got != Insufficient {
		t.Fatalf("QuantitySold over 0 days = %d, want %d", got, Insufficient)
	}
	if got := svc.QuantitySold("apple", 4); got != Insufficient {
		t.Fatalf("QuantitySold beyond retention = %d, want %d", got, Insufficient)
	}
}

func TestNoMatchingEvents(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 3, 3, 16)
	seedTwoDays(t, ts)

	if got := svc.QuantitySold("pear", 2); got != 0 {
		t.Fatalf("QuantitySold for absent product = %d, want 0", got)
	}
	if got := svc.AveragePrice("pear", 2); got != 0 {
		t.Fatalf("AveragePrice for absent product = %v, want 0", got)
	}
	if got := svc.MaxPrice("pear", 2); got != 0 {
		t.Fatalf("MaxPrice for absent product = %v, want 0", got)
	}
}

func TestCacheInvalidatesOnNewDay(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 5, 5, 16)
	seedTwoDays(t, ts)

	if got := svc.QuantitySold("apple", 2); got != 6 {
		t.Fatalf("QuantitySold = %d, want 6", got)
	}
	if svc.CacheLen() == 0 {
		t.Fatal("expected a cached entry after the first query")
	}

	// Rotating shifts the window: the cached value must not be reused.
	ts.AddEvent("apple", 10, 1.00)
	ts.NewDay()
	if svc.CacheLen() != 0 {
		t.Fatalf("cache holds %d entries after rotation, want 0", svc.CacheLen())
	}
	if got := svc.QuantitySold("apple", 2); got != 11 {
		t.Fatalf("QuantitySold after rotation = %d, want 11", got)
	}
}

func TestCacheInvalidatesOnNewEvent(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 5, 5, 16)
	seedTwoDays(t, ts)

	svc.QuantitySold("apple", 2)
	svc.QuantitySold("pear", 2)
	before := svc.CacheLen()

	// A pear sale drops only the pear entry.
	ts.AddEvent("pear", 1, 1.00)
	if got := svc.CacheLen(); got != before-1 {
		t.Fatalf("cache holds %d entries after pear sale, want %d", got, before-1)
	}

	// The common entry mentions both products; either sale drops it.
	svc.CountCommonDays("apple", "pear", 2)
	ts.AddEvent("apple", 1, 1.00)
	for _, key := range []string{"qty:apple:2", "common:apple:pear:2"} {
		if _, ok := svc.cache.Get(key); ok {
			t.Fatalf("entry %q survived an apple sale", key)
		}
	}
}

func TestCountCommonDays(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 5, 5, 16)
	ts.AddEvent("apple", 1, 1.00)
	ts.AddEvent("pear", 1, 1.00)
	ts.NewDay()
	ts.AddEvent("apple", 1, 1.00)
	ts.NewDay()
	ts.AddEvent("pear", 1, 1.00)
	ts.AddEvent("apple", 1, 1.00)
	ts.NewDay()

	if got := svc.CountCommonDays("apple", "pear", 3); got != 2 {
		t.Fatalf("CountCommonDays = %d, want 2", got)
	}
	if got := svc.CountCommonDays("apple", "grape", 3); got != 0 {
		t.Fatalf("CountCommonDays with absent product = %d, want 0", got)
	}
	if got := svc.CountCommonDays("apple", "pear", 4); got != Insufficient {
		t.Fatalf("CountCommonDays over 4 days = %d, want %d", got, Insufficient)
	}
}

func TestMaxConsecutive(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 5, 5, 16)
	for _, p := range []string{"apple", "apple", "pear", "apple", "apple", "apple"} {
		ts.AddEvent(p, 1, 1.00)
	}
	ts.NewDay()
	// Runs do not span days.
	for _, p := range []string{"apple", "apple"} {
		ts.AddEvent(p, 1, 1.00)
	}
	ts.NewDay()

	if got := svc.MaxConsecutive("apple", 2); got != 3 {
		t.Fatalf("MaxConsecutive = %d, want 3", got)
	}
	if got := svc.MaxConsecutive("grape", 2); got != 0 {
		t.Fatalf("MaxConsecutive for absent product = %d, want 0", got)
	}
}

func TestCacheBounded(t *testing.T) {
	t.Parallel()

	ts, svc := newFixture(t, 5, 5, 2)
	seedTwoDays(t, ts)

	svc.QuantitySold("apple", 1)
	svc.QuantitySold("apple", 2)
	svc.SalesVolume("apple", 2)
	if got := svc.CacheLen(); got != 2 {
		t.Fatalf("cache holds %d entries, want LRU bound of 2", got)
	}
	if _, ok := svc.cache.Get("qty:apple:1"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestRestartPreservesAggregations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ts1, err := store.New(3, 3, persist.NewStore(dir), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	svc1, err := New(ts1, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seedTwoDays(t, ts1)
	wantQty := svc1.QuantitySold("apple", 2)
	wantVol := svc1.SalesVolume("apple", 2)

	ts2, err := store.New(3, 3, persist.NewStore(dir), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := ts2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc2, err := New(ts2, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := svc2.QuantitySold("apple", 2); got != wantQty {
		t.Fatalf("QuantitySold after restart = %d, want %d", got, wantQty)
	}
	if got := svc2.SalesVolume("apple", 2); !almostEqual(got, wantVol) {
		t.Fatalf("SalesVolume after restart = %v, want %v", got, wantVol)
	}
}

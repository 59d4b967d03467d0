package store

import (
	"context"
	"testing"
	"time"

	"saleswatch/internal/persist"
	"saleswatch/internal/protocol"
)

func newTestStore(t *testing.T, maxDays, memoryDays int) *Store {
	t.Helper()
	s, err := New(maxDays, memoryDays, persist.NewStore(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAddEventOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	for _, p := range []string{"apple", "pear", "apple"} {
		if err := s.AddEvent(p, 1, 1.0); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}
	got := s.CurrentDayEvents()
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, want := range []string{"apple", "pear", "apple"} {
		if got[i].Product != want {
			t.Fatalf("event %d = %q, want %q", i, got[i].Product, want)
		}
	}
}

func TestNewDayRotation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	if err := s.AddEvent("apple", 2, 1.5); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	s.NewDay()

	if id := s.CurrentDayID(); id != 1 {
		t.Fatalf("CurrentDayID = %d, want 1", id)
	}
	if n := s.CurrentDayEventCount(); n != 0 {
		t.Fatalf("new day has %d events, want 0", n)
	}
	if n := s.HistoricalDayCount(); n != 1 {
		t.Fatalf("HistoricalDayCount = %d, want 1", n)
	}
	hist := s.HistoricalDayEvents(0)
	if len(hist) != 1 || hist[0].Product != "apple" {
		t.Fatalf("HistoricalDayEvents(0) = %+v, want one apple event", hist)
	}
}

func TestMemoryWindowTrimsToDisk(t *testing.T) {
	t.Parallel()

	// S=2, D=5: after four rotations days 3 and 2 live in memory, days 1
	// and 0 only on disk, all four reachable.
	s := newTestStore(t, 5, 2)
	for day := 0; day < 4; day++ {
		if err := s.AddEvent("apple", int32(day+1), 1.0); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
		s.NewDay()
	}

	if len(s.history) != 2 {
		t.Fatalf("in-memory history holds %d days, want 2", len(s.history))
	}
	for daysAgo := int32(0); daysAgo < 4; daysAgo++ {
		events := s.HistoricalDayEvents(daysAgo)
		if len(events) != 1 {
			t.Fatalf("HistoricalDayEvents(%d) = %+v, want 1 event", daysAgo, events)
		}
		if want := 4 - daysAgo; events[0].Quantity != want {
			t.Fatalf("HistoricalDayEvents(%d) quantity = %d, want %d", daysAgo, events[0].Quantity, want)
		}
	}
	if events := s.HistoricalDayEvents(4); len(events) != 0 {
		t.Fatalf("out-of-range day should be empty, got %+v", events)
	}
}

func TestDiskWindowExpiry(t *testing.T) {
	t.Parallel()

	disk := persist.NewStore(t.TempDir())
	s, err := New(2, 1, disk, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for day := 0; day < 3; day++ {
		if err := s.AddEvent("apple", 1, 1.0); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
		s.NewDay()
	}

	// currentDayID is 3 and D=2: day 0 fell off the window.
	if n := s.HistoricalDayCount(); n != 2 {
		t.Fatalf("HistoricalDayCount = %d, want 2", n)
	}
	gone, err := disk.LoadDay(0)
	if err != nil {
		t.Fatalf("LoadDay(0): %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("expired day 0 still on disk: %+v", gone)
	}
}

func TestFilteredEvents(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("pear", 1, 2.0)
	s.NewDay()
	s.AddEvent("apple", 2, 1.0)
	s.AddEvent("grape", 1, 3.0)

	if got := s.FilteredEvents(nil, 0); len(got) != 2 {
		t.Fatalf("empty filter on current day = %+v, want 2 events", got)
	}
	got := s.FilteredEvents([]string{"apple"}, 0)
	if len(got) != 1 || got[0].Quantity != 2 {
		t.Fatalf("apple filter on current day = %+v", got)
	}
	got = s.FilteredEvents([]string{"pear"}, 1)
	if len(got) != 1 || got[0].Product != "pear" {
		t.Fatalf("pear filter on previous day = %+v", got)
	}
	if got := s.FilteredEvents(nil, 2); len(got) != 0 {
		t.Fatalf("out-of-range offset should be empty, got %+v", got)
	}
}

func TestWaitForSimultaneousSales(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := s.WaitForSimultaneousSales(context.Background(), "apple", "pear")
		done <- result{ok, err}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := s.AddEvent("apple", 1, 1.0); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	select {
	case r := <-done:
		t.Fatalf("waiter returned %+v before both products were sold", r)
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.AddEvent("pear", 1, 2.0); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	select {
	case r := <-done:
		if r.err != nil || !r.ok {
			t.Fatalf("waiter = (%v, %v), want (true, nil)", r.ok, r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after both products were sold")
	}
}

func TestWaitForSimultaneousSalesAlreadySatisfied(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("pear", 1, 2.0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := s.WaitForSimultaneousSales(ctx, "apple", "pear")
	if err != nil || !ok {
		t.Fatalf("WaitForSimultaneousSales = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestWaitForSimultaneousSalesDayEnds(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	done := make(chan bool, 1)
	go func() {
		ok, _ := s.WaitForSimultaneousSales(context.Background(), "apple", "pear")
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	s.NewDay()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("waiter reported true after the day ended without both sales")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake on day rotation")
	}

	// Sales on the next day must not retroactively satisfy the query.
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("pear", 1, 2.0)
}

func TestWaitForConsecutiveSales(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	done := make(chan string, 1)
	go func() {
		product, _ := s.WaitForConsecutiveSales(context.Background(), 3)
		done <- product
	}()

	time.Sleep(20 * time.Millisecond)
	// A run of two apples broken by a pear must not trigger.
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("pear", 1, 2.0)
	select {
	case p := <-done:
		t.Fatalf("waiter returned %q on a broken run", p)
	case <-time.After(20 * time.Millisecond):
	}

	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("apple", 1, 1.0)
	s.AddEvent("apple", 1, 1.0)
	select {
	case p := <-done:
		if p != "apple" {
			t.Fatalf("waiter returned %q, want apple", p)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after three consecutive apples")
	}
}

func TestWaitForConsecutiveSalesDayEnds(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	done := make(chan string, 1)
	go func() {
		product, _ := s.WaitForConsecutiveSales(context.Background(), 2)
		done <- product
	}()

	time.Sleep(20 * time.Millisecond)
	s.NewDay()
	select {
	case p := <-done:
		if p != "" {
			t.Fatalf("waiter returned %q after the day ended, want empty", p)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake on day rotation")
	}
}

func TestWaitCancellation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForSimultaneousSales(ctx, "apple", "pear")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("waiter error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake on cancellation")
	}
}

func TestLoadRestoresState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	disk := persist.NewStore(dir)
	s1, err := New(5, 2, disk, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1.AddEvent("apple", 1, 1.0)
	s1.NewDay()
	s1.AddEvent("pear", 2, 2.0)
	s1.NewDay()
	s1.AddEvent("grape", 3, 3.0) // current day, not persisted

	s2, err := New(5, 2, persist.NewStore(dir), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if id := s2.CurrentDayID(); id != 2 {
		t.Fatalf("restored CurrentDayID = %d, want 2", id)
	}
	if n := s2.CurrentDayEventCount(); n != 0 {
		t.Fatalf("restored current day has %d events, want 0", n)
	}
	day0 := s2.HistoricalDayEvents(0)
	if len(day0) != 1 || day0[0].Product != "pear" {
		t.Fatalf("restored day 1 = %+v, want one pear event", day0)
	}
	day1 := s2.HistoricalDayEvents(1)
	if len(day1) != 1 || day1[0].Product != "apple" {
		t.Fatalf("restored day 0 = %+v, want one apple event", day1)
	}
}

func TestDefensiveCopies(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	s.AddEvent("apple", 1, 1.0)
	got := s.CurrentDayEvents()
	got[0].Product = "mutated"
	if fresh := s.CurrentDayEvents(); fresh[0].Product != "apple" {
		t.Fatalf("caller mutation leaked into the store: %+v", fresh)
	}
}

func TestEventTimestamp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 5, 2)
	before := time.Now().UnixMilli()
	s.AddEvent("apple", 1, 1.0)
	after := time.Now().UnixMilli()
	ev := s.CurrentDayEvents()[0]
	if ev.Timestamp < before || ev.Timestamp > after {
		t.Fatalf("timestamp %d outside [%d, %d]", ev.Timestamp, before, after)
	}
	if ev != (protocol.Event{Product: "apple", Quantity: 1, Price: 1.0, Timestamp: ev.Timestamp}) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

// Package store keeps the rolling daily time series: the live current day,
// up to S completed days in memory and up to D completed days on disk.
// It also hosts the blocking condition-queries that wait on live activity.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"saleswatch/internal/eventbus"
	"saleswatch/internal/persist"
	"saleswatch/internal/protocol"
)

// ErrDayCompleted reports an append against a completed day. The rotation
// protocol installs a fresh day before releasing the lock, so this should
// never surface in normal operation.
var ErrDayCompleted = errors.New("store: current day already completed")

// Invalidator is notified after mutations that can make cached
// aggregations stale. Implemented by the aggregation cache.
type Invalidator interface {
	// InvalidateOnNewEvent drops cached aggregations mentioning product.
	InvalidateOnNewEvent(product string)
	// InvalidateOnNewDay drops everything; every window shifts.
	InvalidateOnNewDay()
}

type day struct {
	id        int32
	events    []protocol.Event
	startTime int64
	completed bool
}

func newDay(id int32) *day {
	return &day{id: id, startTime: time.Now().UnixMilli()}
}

// Store is the time-series store. One mutex guards all state; the condition
// variable is bound to it and signaled by AddEvent and NewDay. A single
// lock (rather than an RW lock) keeps the waiters and writers on the same
// Locker the condvar needs and cannot starve writers; reads are short
// critical sections that return defensive copies.
type Store struct {
	maxDays       int32 // D: completed days retained on disk
	maxMemoryDays int   // S: completed days retained in memory

	disk *persist.Store
	bus  *eventbus.Bus

	mu           sync.Mutex
	cond         *sync.Cond
	current      *day
	history      []*day // most recent first, all completed
	currentDayID int32
	inv          Invalidator
}

// New creates an empty store. maxDays is D, maxMemoryDays is S; S must not
// exceed D.
func New(maxDays, maxMemoryDays int, disk *persist.Store, bus *eventbus.Bus) (*Store, error) {
	if maxDays < 1 {
		return nil, fmt.Errorf("store: maxDays must be >= 1, got %d", maxDays)
	}
	if maxMemoryDays < 0 || maxMemoryDays > maxDays {
		return nil, fmt.Errorf("store: maxMemoryDays must be in [0, %d], got %d", maxDays, maxMemoryDays)
	}
	s := &Store{
		maxDays:       int32(maxDays),
		maxMemoryDays: maxMemoryDays,
		disk:          disk,
		bus:           bus,
		current:       newDay(0),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// SetInvalidator wires the aggregation cache. Separate from New because the
// aggregation service is built on top of the store.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv = inv
}

// Load restores state from disk: the current day id, then the most recent
// completed days into memory (newest first, at most S). Older days stay on
// disk and are loaded on demand. Missing files mean a fresh store.
func (s *Store) Load() error {
	id, ok, err := s.disk.LoadState()
	if err != nil {
		return fmt.Errorf("store: load state: %w", err)
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDayID = id
	s.current = newDay(id)
	s.history = nil

	lo := id - int32(s.maxMemoryDays)
	if lo < 0 {
		lo = 0
	}
	for d := id - 1; d >= lo; d-- {
		events, err := s.disk.LoadDay(d)
		if err != nil {
			return fmt.Errorf("store: load day %d: %w", d, err)
		}
		s.history = append(s.history, &day{id: d, events: events, completed: true})
	}
	return nil
}

// AddEvent appends a sale with the current timestamp to the live day and
// wakes the condition waiters.
func (s *Store) AddEvent(product string, quantity int32, price float64) error {
	return s.append(protocol.NewEvent(product, quantity, price))
}

// AddRecoveredEvent appends an already-stamped event, used on replay.
func (s *Store) AddRecoveredEvent(ev protocol.Event) error {
	return s.append(ev)
}

func (s *Store) append(ev protocol.Event) error {
	s.mu.Lock()
	if s.current.completed {
		s.mu.Unlock()
		return ErrDayCompleted
	}
	s.current.events = append(s.current.events, ev)
	dayID := s.currentDayID
	inv := s.inv
	s.cond.Broadcast()
	s.mu.Unlock()

	if inv != nil {
		inv.InvalidateOnNewEvent(ev.Product)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Message{Type: eventbus.TypeSaleAdded, DayID: dayID, Sale: ev})
	}
	return nil
}

// NewDay rotates the current day:
//
//  1. mark it completed and wake every waiter so blocked queries observe
//     the terminal state
//  2. persist the completed day and the state header
//  3. promote it to the head of the in-memory history, trimming to S
//  4. drop the day file that fell out of the D-day disk window
//  5. invalidate the aggregation cache
//  6. install a fresh empty day with the next id
//
// A persistence failure is logged and rotation proceeds in memory:
// availability wins over single-write durability.
func (s *Store) NewDay() {
	s.mu.Lock()

	completed := s.current
	completed.completed = true
	s.cond.Broadcast()

	if err := s.disk.SaveDay(completed.id, completed.events); err != nil {
		log.Printf("store: persist day %d: %v", completed.id, err)
	} else if err := s.disk.SaveState(s.currentDayID + 1); err != nil {
		log.Printf("store: persist state: %v", err)
	}

	s.history = append([]*day{completed}, s.history...)
	for len(s.history) > s.maxMemoryDays {
		s.history = s.history[:len(s.history)-1]
	}

	if expired := s.currentDayID - s.maxDays; expired >= 0 {
		if err := s.disk.DeleteDay(expired); err != nil {
			log.Printf("store: delete day %d: %v", expired, err)
		}
	}

	if s.inv != nil {
		s.inv.InvalidateOnNewDay()
	}

	eventCount := len(completed.events)
	completedID := completed.id
	s.currentDayID++
	s.current = newDay(s.currentDayID)
	newID := s.currentDayID
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.Message{
			Type:         eventbus.TypeDayRotated,
			DayID:        newID,
			CompletedDay: completedID,
			EventCount:   eventCount,
		})
	}
}

// Save persists the state header. Completed days are persisted when they
// rotate, so an explicit save only needs the header.
func (s *Store) Save() error {
	s.mu.Lock()
	id := s.currentDayID
	s.mu.Unlock()
	return s.disk.SaveState(id)
}

// CurrentDayID returns the live day's id.
func (s *Store) CurrentDayID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDayID
}

// CurrentDayEventCount returns the number of events in the live day.
func (s *Store) CurrentDayEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.current.events)
}

// MaxDays returns D.
func (s *Store) MaxDays() int32 { return s.maxDays }

// MemoryDays returns S.
func (s *Store) MemoryDays() int { return s.maxMemoryDays }

// HistoricalDayCount returns how many completed days are available across
// memory and disk.
func (s *Store) HistoricalDayCount() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historicalDayCountLocked()
}

func (s *Store) historicalDayCountLocked() int32 {
	if s.currentDayID < s.maxDays {
		return s.currentDayID
	}
	return s.maxDays
}

// CurrentDayEvents returns a copy of the live day's events in append order.
func (s *Store) CurrentDayEvents() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.current.events...)
}

// HistoricalDayEvents returns the events of a completed day. daysAgo 0 is
// the most recently completed day. Days within the memory window are served
// from memory, older ones from disk. Out of range yields an empty list.
func (s *Store) HistoricalDayEvents(daysAgo int32) []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historicalDayEventsLocked(daysAgo)
}

func (s *Store) historicalDayEventsLocked(daysAgo int32) []protocol.Event {
	if daysAgo < 0 || daysAgo >= s.historicalDayCountLocked() {
		return []protocol.Event{}
	}
	if int(daysAgo) < len(s.history) {
		return append([]protocol.Event(nil), s.history[daysAgo].events...)
	}
	targetID := s.currentDayID - 1 - daysAgo
	events, err := s.disk.LoadDay(targetID)
	if err != nil {
		log.Printf("store: load day %d: %v", targetID, err)
		return []protocol.Event{}
	}
	return events
}

// FilteredEvents returns the events of one day filtered by product.
// dayOffset 0 is the current day, k >= 1 the k-th most recently completed
// day. A nil or empty product list means all products. Order is preserved.
func (s *Store) FilteredEvents(products []string, dayOffset int32) []protocol.Event {
	s.mu.Lock()
	var source []protocol.Event
	if dayOffset == 0 {
		source = append([]protocol.Event(nil), s.current.events...)
	} else {
		source = s.historicalDayEventsLocked(dayOffset - 1)
	}
	s.mu.Unlock()

	if len(products) == 0 {
		return source
	}
	wanted := make(map[string]struct{}, len(products))
	for _, p := range products {
		wanted[p] = struct{}{}
	}
	out := make([]protocol.Event, 0, len(source))
	for _, ev := range source {
		if _, ok := wanted[ev.Product]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// WaitForSimultaneousSales blocks until the current day contains at least
// one sale of each product, returning true. It returns false if the day
// completes first, or if ctx is canceled (with the context error).
func (s *Store) WaitForSimultaneousSales(ctx context.Context, product1, product2 string) (bool, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	// The current day may rotate while we sleep; track the day we started
	// on so its completion is terminal for this query.
	watched := s.current
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if watched.completed {
			return false, nil
		}
		has1, has2 := false, false
		for _, ev := range watched.events {
			if ev.Product == product1 {
				has1 = true
			}
			if ev.Product == product2 {
				has2 = true
			}
			if has1 && has2 {
				return true, nil
			}
		}
		s.cond.Wait()
	}
}

// WaitForConsecutiveSales blocks until the tail-most n events of the
// current day all share one product, returning that product. It returns
// "" if the day completes first, or if ctx is canceled (with the context
// error). n must be at least 1.
func (s *Store) WaitForConsecutiveSales(ctx context.Context, n int32) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("store: n must be >= 1, got %d", n)
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	watched := s.current
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if watched.completed {
			return "", nil
		}
		if len(watched.events) >= int(n) {
			tail := watched.events[len(watched.events)-int(n):]
			product := tail[0].Product
			run := true
			for _, ev := range tail[1:] {
				if ev.Product != product {
					run = false
					break
				}
			}
			if run {
				return product, nil
			}
		}
		s.cond.Wait()
	}
}

// Stats is a point-in-time snapshot for the console and the HTTP API.
type Stats struct {
	CurrentDayID   int32
	EventsToday    int
	HistoricalDays int32
	MaxDays        int32
	MemoryDays     int
}

// Snapshot returns the current counters.
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		CurrentDayID:   s.currentDayID,
		EventsToday:    len(s.current.events),
		HistoricalDays: s.historicalDayCountLocked(),
		MaxDays:        s.maxDays,
		MemoryDays:     s.maxMemoryDays,
	}
}

// Package aggregate computes windowed aggregations over completed days and
// caches them in a bounded LRU. Entries are stamped with the day id they
// were computed on and dropped when a relevant sale arrives or the day
// rotates, so a cached value is always equal to a fresh scan.
package aggregate

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"saleswatch/internal/protocol"
	"saleswatch/internal/store"
)

// Insufficient is returned by every aggregation when the store holds fewer
// completed days than the requested window.
const Insufficient = -1

type entry struct {
	intVal          int64
	floatVal        float64
	computedAtDayID int32
}

// Service answers aggregation queries against the time-series store.
// Concurrent requests for the same key share one computation.
type Service struct {
	ts    *store.Store
	cache *lru.Cache[string, entry]
	group singleflight.Group
}

// New creates a service with an LRU of at most size entries.
func New(ts *store.Store, size int) (*Service, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	s := &Service{ts: ts, cache: cache}
	ts.SetInvalidator(s)
	return s, nil
}

// CacheLen returns the number of cached entries.
func (s *Service) CacheLen() int { return s.cache.Len() }

// InvalidateOnNewEvent removes every cached aggregation whose key mentions
// product. Keys are "<kind>:<product…>:<days>", so the product segments sit
// between the first and last colon.
func (s *Service) InvalidateOnNewEvent(product string) {
	for _, key := range s.cache.Keys() {
		parts := strings.Split(key, ":")
		for _, seg := range parts[1 : len(parts)-1] {
			if seg == product {
				s.cache.Remove(key)
				break
			}
		}
	}
}

// InvalidateOnNewDay clears the cache; every window shifted.
func (s *Service) InvalidateOnNewDay() {
	s.cache.Purge()
}

// QuantitySold returns the total quantity of product sold over the last
// days completed days, or Insufficient.
func (s *Service) QuantitySold(product string, days int32) int64 {
	return s.intAggregate(fmt.Sprintf("qty:%s:%d", product, days), days, func(events []protocol.Event) int64 {
		var sum int64
		for _, ev := range events {
			if ev.Product == product {
				sum += int64(ev.Quantity)
			}
		}
		return sum
	})
}

// SalesVolume returns the total revenue of product over the window, or
// Insufficient.
func (s *Service) SalesVolume(product string, days int32) float64 {
	return s.floatAggregate(fmt.Sprintf("rev:%s:%d", product, days), days, func(events []protocol.Event) float64 {
		var sum float64
		for _, ev := range events {
			if ev.Product == product {
				sum += ev.TotalValue()
			}
		}
		return sum
	})
}

// AveragePrice returns the quantity-weighted average price of product over
// the window, 0 when no matching events exist, or Insufficient. Unlike the
// additive aggregations it folds the whole window at once; a per-day fold
// would average averages.
func (s *Service) AveragePrice(product string, days int32) float64 {
	key := fmt.Sprintf("avg:%s:%d", product, days)
	return s.cached(key, days, func() entry {
		var revenue float64
		var quantity int64
		for _, ev := range s.windowEvents(days) {
			if ev.Product == product {
				revenue += ev.TotalValue()
				quantity += int64(ev.Quantity)
			}
		}
		if quantity == 0 {
			return entry{}
		}
		return entry{floatVal: revenue / float64(quantity)}
	}).floatVal
}

// MaxPrice returns the highest unit price of product over the window, 0
// when no matching events exist, or Insufficient.
func (s *Service) MaxPrice(product string, days int32) float64 {
	key := fmt.Sprintf("max:%s:%d", product, days)
	return s.cached(key, days, func() entry {
		max := 0.0
		for _, ev := range s.windowEvents(days) {
			if ev.Product == product && ev.Price > max {
				max = ev.Price
			}
		}
		return entry{floatVal: max}
	}).floatVal
}

// CountCommonDays returns how many days in the window saw at least one sale
// of both products, or Insufficient.
func (s *Service) CountCommonDays(product1, product2 string, days int32) int64 {
	key := fmt.Sprintf("common:%s:%s:%d", product1, product2, days)
	return s.cached(key, days, func() entry {
		var count int64
		for k := int32(0); k < days; k++ {
			has1, has2 := false, false
			for _, ev := range s.ts.HistoricalDayEvents(k) {
				if ev.Product == product1 {
					has1 = true
				}
				if ev.Product == product2 {
					has2 = true
				}
				if has1 && has2 {
					count++
					break
				}
			}
		}
		return entry{intVal: count}
	}).intVal
}

// MaxConsecutive returns the longest run of back-to-back sales of product
// within a single day of the window, or Insufficient.
func (s *Service) MaxConsecutive(product string, days int32) int64 {
	key := fmt.Sprintf("maxseq:%s:%d", product, days)
	return s.cached(key, days, func() entry {
		var best int64
		for k := int32(0); k < days; k++ {
			var run int64
			for _, ev := range s.ts.HistoricalDayEvents(k) {
				if ev.Product == product {
					run++
					if run > best {
						best = run
					}
				} else {
					run = 0
				}
			}
		}
		return entry{intVal: best}
	}).intVal
}

func (s *Service) intAggregate(key string, days int32, scan func([]protocol.Event) int64) int64 {
	return s.cached(key, days, func() entry {
		var sum int64
		for k := int32(0); k < days; k++ {
			sum += scan(s.ts.HistoricalDayEvents(k))
		}
		return entry{intVal: sum}
	}).intVal
}

func (s *Service) floatAggregate(key string, days int32, scan func([]protocol.Event) float64) float64 {
	return s.cached(key, days, func() entry {
		var sum float64
		for k := int32(0); k < days; k++ {
			sum += scan(s.ts.HistoricalDayEvents(k))
		}
		return entry{floatVal: sum}
	}).floatVal
}

func (s *Service) windowEvents(days int32) []protocol.Event {
	var all []protocol.Event
	for k := int32(0); k < days; k++ {
		all = append(all, s.ts.HistoricalDayEvents(k)...)
	}
	return all
}

// cached serves key from the cache when the entry was computed on the
// current day, otherwise computes it (once across concurrent callers) and
// stores it. Out-of-range windows yield Insufficient without caching.
func (s *Service) cached(key string, days int32, compute func() entry) entry {
	if days < 1 || days > s.ts.MaxDays() || s.ts.HistoricalDayCount() < days {
		return entry{intVal: Insufficient, floatVal: Insufficient}
	}
	if e, ok := s.cache.Get(key); ok && e.computedAtDayID == s.ts.CurrentDayID() {
		return e
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		// Stamp before scanning: if a rotation lands mid-scan the stamp is
		// stale and the next reader recomputes.
		e := entry{computedAtDayID: s.ts.CurrentDayID()}
		computed := compute()
		e.intVal = computed.intVal
		e.floatVal = computed.floatVal
		s.cache.Add(key, e)
		return e, nil
	})
	return v.(entry)
}

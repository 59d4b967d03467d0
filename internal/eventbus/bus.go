// Package eventbus fans live store activity out to in-process subscribers
// (websocket feed, metrics) without ever blocking the time-series store.
package eventbus

import (
	"sync"

	"saleswatch/internal/protocol"
)

// Message types published by the store.
const (
	TypeSaleAdded  = "sale.added"
	TypeDayRotated = "day.rotated"
)

// Message is one bus notification. For TypeSaleAdded, Sale holds the
// appended event; for TypeDayRotated, CompletedDay is the rotated day id
// and EventCount its size.
type Message struct {
	Type         string
	DayID        int32
	Sale         protocol.Event
	CompletedDay int32
	EventCount   int
}

// Bus routes messages to subscribers by message type. Delivery is over Go
// channels and safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Message
	closed      bool
}

// New creates a Bus ready for use.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan<- Message)}
}

// Subscribe registers a channel for messages of the given type. The caller
// owns the channel and picks its buffer; slow subscribers have messages
// dropped rather than stalling the publisher.
func (b *Bus) Subscribe(msgType string, ch chan<- Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[msgType] = append(b.subscribers[msgType], ch)
}

// Publish delivers to every subscriber of msg.Type, dropping for any whose
// channel is full. No-op after Close.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[msg.Type] {
		select {
		case ch <- msg:
		default:
			// drop if subscriber is slow
		}
	}
}

// Close marks the bus closed; subsequent publishes are dropped. Subscriber
// channels are not closed here, their owners close them.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

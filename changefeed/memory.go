/*
memory.go - In-process change feed

PURPOSE:
  Broker for a single API instance, and the fallback when Redis is not
  configured or not reachable. Subscribers get a buffered channel per house.

SEE ALSO:
  - redis.go: the multi-instance Broker
*/
package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/warp/house-ledger/ledger"
)

const subscriberBuffer = 32

// Memory is an in-process Broker.
type Memory struct {
	mu     sync.Mutex
	subs   map[ledger.HouseID]map[int]chan Event
	nextID int
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[ledger.HouseID]map[int]chan Event)}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ch := range m.subs[e.HouseID] {
		select {
		case ch <- e:
		default:
			slog.Debug("Dropped change event for slow subscriber", "house_id", e.HouseID, "subscriber", id)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, house ledger.HouseID) (<-chan Event, func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return ch, func() {}, nil
	}
	id := m.nextID
	m.nextID++
	ch := make(chan Event, subscriberBuffer)
	if m.subs[house] == nil {
		m.subs[house] = make(map[int]chan Event)
	}
	m.subs[house][id] = ch
	m.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[house][id]; ok {
				delete(m.subs[house], id)
				close(sub)
			}
			if len(m.subs[house]) == 0 {
				delete(m.subs, house)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Close ends every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for house, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, house)
	}
	m.closed = true
	return nil
}

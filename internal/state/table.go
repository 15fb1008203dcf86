// Package state holds per-key detector state with a bounded footprint. Keys
// are spread over independently locked shards; each shard keeps its entries
// in recency order so the least recently touched key is evicted first when
// the shard is full, and entries idle for longer than the TTL are dropped.
package state

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultCapacity      = 100000
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
	DefaultShards        = 16
)

type Config struct {
	// Capacity is the maximum number of live keys across all shards.
	Capacity int
	// TTL is how long a key survives without being updated.
	TTL    time.Duration
	Shards int
}

func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		TTL:      DefaultTTL,
		Shards:   DefaultShards,
	}
}

type entry[T any] struct {
	key      string
	value    T
	lastSeen time.Time
}

type shard[T any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	// front is most recently updated
	order *list.List
}

// Table maps string keys to values of T. The zero Table is not usable; build
// one with New.
type Table[T any] struct {
	shards   []*shard[T]
	ttl      time.Duration
	newValue func() T
}

// New builds a table. newValue produces the initial state for a key seen for
// the first time (or again after expiry); nil means the zero value of T.
func New[T any](cfg Config, newValue func() T) *Table[T] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Shards > cfg.Capacity {
		cfg.Shards = cfg.Capacity
	}
	if newValue == nil {
		newValue = func() T {
			var zero T
			return zero
		}
	}

	perShard := (cfg.Capacity + cfg.Shards - 1) / cfg.Shards
	t := &Table[T]{
		shards:   make([]*shard[T], cfg.Shards),
		ttl:      cfg.TTL,
		newValue: newValue,
	}
	for i := range t.shards {
		t.shards[i] = &shard[T]{
			capacity: perShard,
			items:    make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return t
}

func (t *Table[T]) shardFor(key string) *shard[T] {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

// Update runs fn on the state for key while holding the key's shard lock, so
// a read-modify-write inside fn is atomic with respect to other updates of
// the same key. An expired entry is reset before fn sees it. fn must not call
// back into the table.
func (t *Table[T]) Update(key string, now time.Time, fn func(v *T)) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var e *entry[T]
	if elem, ok := s.items[key]; ok {
		e = elem.Value.(*entry[T])
		if t.expired(e, now) {
			e.value = t.newValue()
		}
		s.order.MoveToFront(elem)
	} else {
		e = &entry[T]{key: key, value: t.newValue()}
		s.items[key] = s.order.PushFront(e)
		for len(s.items) > s.capacity {
			s.removeElement(s.order.Back())
		}
	}

	e.lastSeen = now
	fn(&e.value)
}

// Get returns a copy of the live state for key without refreshing it.
func (t *Table[T]) Get(key string, now time.Time) (T, bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		e := elem.Value.(*entry[T])
		if !t.expired(e, now) {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

// Sweep drops every entry idle for longer than the TTL and returns how many
// were removed.
func (t *Table[T]) Sweep(now time.Time) int {
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for elem := s.order.Back(); elem != nil; {
			prev := elem.Prev()
			if t.expired(elem.Value.(*entry[T]), now) {
				s.removeElement(elem)
				removed++
			}
			elem = prev
		}
		s.mu.Unlock()
	}
	return removed
}

// Len counts stored entries, including expired ones not yet swept.
func (t *Table[T]) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

func (t *Table[T]) Reset() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.items = make(map[string]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
}

func (t *Table[T]) expired(e *entry[T], now time.Time) bool {
	return now.Sub(e.lastSeen) > t.ttl
}

func (s *shard[T]) removeElement(elem *list.Element) {
	e := s.order.Remove(elem).(*entry[T])
	delete(s.items, e.key)
}

// Package cache holds derived per-column artifacts (expanded channel
// matrices, detection results) keyed by the source they were computed from.
//
// A Store is safe for concurrent use. Concurrent GetOrCompute calls for the
// same key share one computation; distinct keys compute independently.
//
// NOTE: Invalidate and Purge also retire computations that are still
// running. Each source carries a generation that Invalidate bumps (Purge
// bumps a store-wide epoch); a computation that finishes under an older
// generation hands its value to its callers but is never stored.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"plotprep/internal/metrics"
)

// Key identifies one cached artifact. Source is the loaded table's identity,
// never its file name: two loads of the same file are different sources.
type Key struct {
	Source string
	Column string
}

func (k Key) flight() string { return k.Source + "\x00" + k.Column }

// Stats is a point-in-time snapshot of a Store.
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

type entry[V any] struct {
	val  V
	size int64
}

// Store maps Key to V. Sizes are caller-reported and only used for
// accounting (Bytes/Stats); eviction is explicit via Invalidate/Purge.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[Key]entry[V]
	bytes   int64
	hits    int64
	misses  int64

	// gens and epoch fence in-flight computations; see the package doc.
	gens  map[string]uint64
	epoch uint64

	group singleflight.Group

	// Name labels cache metrics ("matrix", "detect").
	Name string
}

// New returns an empty store.
func New[V any](name string) *Store[V] {
	return &Store[V]{entries: make(map[Key]entry[V]), Name: name}
}

// Peek returns the cached value without computing.
func (s *Store[V]) Peek(k Key) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	return e.val, ok
}

// GetOrCompute returns the value for k, calling compute at most once per key
// across concurrent callers. compute reports the value's size in bytes.
// Errors are not cached. hit reports whether the value was already present.
func (s *Store[V]) GetOrCompute(k Key, compute func() (V, int64, error)) (v V, hit bool, err error) {
	// compute closes over the caller's view of the source, so the fence is
	// taken before anything else.
	gen, epoch := s.generation(k.Source)
	if v, ok := s.Peek(k); ok {
		s.count(true)
		return v, true, nil
	}

	res, err, _ := s.group.Do(k.flight(), func() (any, error) {
		// Another flight may have finished between Peek and Do.
		if v, ok := s.Peek(k); ok {
			return v, nil
		}
		v, size, err := compute()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gens[k.Source] != gen || s.epoch != epoch {
			// Invalidated while computing; the source is retired.
			return v, nil
		}
		if s.entries == nil {
			s.entries = make(map[Key]entry[V])
		}
		if old, ok := s.entries[k]; ok {
			s.bytes -= old.size
		}
		s.entries[k] = entry[V]{val: v, size: size}
		s.bytes += size
		return v, nil
	})
	s.count(false)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

func (s *Store[V]) generation(source string) (gen, epoch uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[source], s.epoch
}

// Invalidate drops every entry computed from source and returns how many
// were removed. Computations for source still in flight are not stored.
// Call it when a source table is replaced or removed.
func (s *Store[V]) Invalidate(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens == nil {
		s.gens = make(map[string]uint64)
	}
	s.gens[source]++
	n := 0
	for k, e := range s.entries {
		if k.Source != source {
			continue
		}
		s.bytes -= e.size
		delete(s.entries, k)
		n++
	}
	return n
}

// Purge drops everything, including results of computations in flight.
func (s *Store[V]) Purge() {
	s.mu.Lock()
	s.entries = make(map[Key]entry[V])
	s.bytes = 0
	s.epoch++
	s.mu.Unlock()
}

func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[V]) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

func (s *Store[V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Entries: len(s.entries), Bytes: s.bytes, Hits: s.hits, Misses: s.misses}
}

func (s *Store[V]) count(hit bool) {
	result := "miss"
	s.mu.Lock()
	if hit {
		s.hits++
		result = "hit"
	} else {
		s.misses++
	}
	s.mu.Unlock()
	metrics.IncCounter("plotprep_cache_total", 1, metrics.Labels{"cache": s.Name, "result": result})
}

// Package artifact memoizes intermediate build products, such as the injected
// entry source, shared by tasks of one run.
package artifact

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type Producer func(ctx context.Context) (any, error)

// Store caches artifacts by key. Concurrent requests for the same key share
// one producer call; failures are not cached.
type Store struct {
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]any
	// gen counts invalidations. A value produced under an older generation is
	// returned to its callers but never cached.
	gen uint64

	hits   atomic.Int64
	misses atomic.Int64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]any)}
}

func (s *Store) lookup(key string) (any, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, s.gen, ok
}

func (s *Store) Get(ctx context.Context, key string, produce Producer) (any, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Get: nil context")
	}
	if s == nil || s.entries == nil {
		return nil, fmt.Errorf("Get: nil Store (use NewStore)")
	}
	if key == "" {
		return nil, fmt.Errorf("Get: empty artifact key")
	}
	if produce == nil {
		return nil, fmt.Errorf("Get: nil producer for %s", key)
	}

	val, gen, ok := s.lookup(key)
	if ok {
		s.hits.Add(1)
		return val, nil
	}

	flight := strconv.FormatUint(gen, 10) + "/" + key
	val, err, _ := s.group.Do(flight, func() (any, error) {
		s.misses.Add(1)
		v, err := produce(ctx)
		if err == nil {
			s.mu.Lock()
			if s.gen == gen {
				s.entries[key] = v
			}
			s.mu.Unlock()
		}
		return v, err
	})
	return val, err
}

// Invalidate drops every cached artifact. Watch mode calls it before a rebuild.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	s.gen++
}

// Stats returns cache hits and producer calls so far. The engine logs them
// after each run.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Typed is Get for a producer of T.
func Typed[T any](ctx context.Context, s *Store, key string, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	val, err := s.Get(ctx, key, func(ctx context.Context) (any, error) {
		return produce(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("artifact %s: cached %T, want %T", key, val, zero)
	}
	return out, nil
}

// Key builds a deterministic artifact key from a kind and parameters.
func Key(kind string, params map[string]string) string {
	return kind + ":" + stableParamsKey(params)
}

func stableParamsKey(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

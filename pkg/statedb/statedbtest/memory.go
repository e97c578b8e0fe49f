// Package statedbtest provides an in-memory Redis hash store for tests.
package statedbtest

import (
	"errors"
	"path"
	"sort"
	"sync"

	"github.com/go-redis/redis"
)

// ErrDown is returned by every command while the store is down.
var ErrDown = errors.New("connection refused")

// Memory implements the hash subset of the Redis client in memory.
type Memory struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	down   bool
	writes int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{hashes: make(map[string]map[string]string)}
}

// SetDown makes every command fail with ErrDown until called with false.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Writes returns the number of successful HMSet calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Hash returns a copy of the hash at key, or nil.
func (m *Memory) Hash(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// KeyList returns every key, sorted.
func (m *Memory) KeyList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.hashes))
	for k := range m.hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush deletes every key, as a server restarting without persistence.
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes = make(map[string]map[string]string)
}

// Put replaces the hash at key.
func (m *Memory) Put(key string, fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v
	}
	m.hashes[key] = h
}

func (m *Memory) Ping() *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewStatusResult("", ErrDown)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (m *Memory) HMSet(key string, fields map[string]interface{}) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewStatusResult("", ErrDown)
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		s, _ := v.(string)
		h[k] = s
	}
	m.writes++
	return redis.NewStatusResult("OK", nil)
}

func (m *Memory) HGetAll(key string) *redis.StringStringMapCmd {
	if m.isDown() {
		return redis.NewStringStringMapResult(nil, ErrDown)
	}
	h := m.Hash(key)
	if h == nil {
		h = map[string]string{}
	}
	return redis.NewStringStringMapResult(h, nil)
}

func (m *Memory) Del(keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewIntResult(0, ErrDown)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.hashes[k]; ok {
			delete(m.hashes, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *Memory) Keys(pattern string) *redis.StringSliceCmd {
	if m.isDown() {
		return redis.NewStringSliceResult(nil, ErrDown)
	}
	var out []string
	for _, k := range m.KeyList() {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) isDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.down
}

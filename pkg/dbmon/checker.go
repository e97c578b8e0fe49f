package dbmon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis"

	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/statedb"
)

// Defaults.
const (
	DefaultSettle = 200 * time.Millisecond
	DefaultResync = 5 * time.Minute
)

// Client is the subset of *redis.Client the checker reads with.
type Client interface {
	Keys(pattern string) *redis.StringSliceCmd
	HGetAll(key string) *redis.StringStringMapCmd
}

// Watcher delivers keyspace notification channels matching patterns. The
// returned channel is closed when the subscription fails.
type Watcher interface {
	Watch(ctx context.Context, patterns ...string) (<-chan string, error)
}

// Checker watches a set of CONFIG_DB tables.
type Checker struct {
	Client  Client
	Watcher Watcher
	Tables  []string

	// DB is the database number used in notification patterns.
	DB int

	// Settle delays a reload after a notification so that a burst of
	// writes is handled once.
	Settle time.Duration

	// Resync reloads all tables periodically, also detecting a dead
	// connection.
	Resync time.Duration

	Backoff *connection.Backoff
	Logger  *slog.Logger

	mu       sync.Mutex
	snapshot Snapshot
}

// Snapshot returns the last loaded snapshot. Callers must not modify it.
func (c *Checker) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Load reads every table.
func (c *Checker) Load() (Snapshot, error) {
	snap := make(Snapshot, len(c.Tables))
	for _, name := range c.Tables {
		t, err := c.loadTable(name)
		if err != nil {
			return nil, err
		}
		snap[name] = t
	}
	return snap, nil
}

func (c *Checker) loadTable(name string) (Table, error) {
	keys, err := c.Client.Keys(name + KeySeparator + "*").Result()
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", name, err)
	}
	t := make(Table, len(keys))
	for _, full := range keys {
		fields, err := c.Client.HGetAll(full).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", full, err)
		}
		// Deleted between KEYS and HGETALL.
		if len(fields) == 0 {
			continue
		}
		_, key, _ := SplitKey(full)
		t[key] = fields
	}
	return t, nil
}

// Refresh reloads all tables and returns what changed since the last
// load. The first call returns every key as added.
func (c *Checker) Refresh() (Snapshot, Changes, error) {
	snap, err := c.Load()
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	old := c.snapshot
	c.snapshot = snap
	c.mu.Unlock()
	return snap, DiffSnapshots(old, snap), nil
}

// Patterns returns the keyspace notification patterns of the tables.
func (c *Checker) Patterns() []string {
	out := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		out = append(out, fmt.Sprintf("__keyspace@%d__:%s%s*", c.DB, t, KeySeparator))
	}
	return out
}

// Run calls fn with the full snapshot and the changes after every reload
// that changed something, until ctx is done. The first successful load is
// always reported. Connection failures are retried with backoff.
func (c *Checker) Run(ctx context.Context, fn func(ctx context.Context, snap Snapshot, changes Changes) error) error {
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Resync <= 0 {
		c.Resync = DefaultResync
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	first := true
	reload := func(ctx context.Context) error {
		snap, err := c.Load()
		if err != nil {
			return err
		}
		changes := DiffSnapshots(c.Snapshot(), snap)
		if len(changes) == 0 && !first {
			return nil
		}
		logger.Info("config changed", slog.Any("tables", changes.Tables()))
		// The snapshot only advances once the change was handled, so a
		// failed handler sees the same changes after reconnecting.
		if err := fn(ctx, snap, changes); err != nil {
			return err
		}
		first = false
		c.mu.Lock()
		c.snapshot = snap
		c.mu.Unlock()
		return nil
	}

	loop := &connection.Loop{Name: "config-db", Backoff: c.Backoff, Logger: logger}
	return loop.Run(ctx, func(ctx context.Context, connected func()) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		notes, err := c.Watcher.Watch(ctx, c.Patterns()...)
		if err != nil {
			return err
		}
		// Subscribe before loading so no change falls in between.
		if err := reload(ctx); err != nil {
			return err
		}
		connected()

		resync := time.NewTicker(c.Resync)
		defer resync.Stop()
		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch, ok := <-notes:
				if !ok {
					return fmt.Errorf("keyspace subscription closed")
				}
				logger.Debug("keyspace notification", slog.String("channel", ch))
				if settle == nil {
					settle = time.After(c.Settle)
				}
			case <-settle:
				settle = nil
				if err := reload(ctx); err != nil {
					return err
				}
			case <-resync.C:
				if err := reload(ctx); err != nil {
					return err
				}
			}
		}
	})
}

// RedisWatcher subscribes with PSUBSCRIBE on a go-redis client.
type RedisWatcher struct {
	Client *redis.Client
}

// Connect opens a CONFIG_DB client.
func Connect(addr string) (*redis.Client, error) {
	return statedb.Connect(statedb.Options{Addr: addr, DB: statedb.ConfigDB})
}

// Watch implements Watcher.
func (w RedisWatcher) Watch(ctx context.Context, patterns ...string) (<-chan string, error) {
	ps := w.Client.PSubscribe(patterns...)
	if _, err := ps.Receive(); err != nil {
		ps.Close()
		return nil, fmt.Errorf("psubscribe: %w", err)
	}
	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Channel:
				default:
					// A reload is pending anyway.
				}
			}
		}
	}()
	return out, nil
}

package statedb

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis"
)

// Database numbers of the switch Redis instance.
const (
	ApplDB   = 0
	ConfigDB = 4
	StateDB  = 6
)

// DefaultAddr is the address of the local Redis server.
const DefaultAddr = "127.0.0.1:6379"

// Client is the subset of *redis.Client used by this package.
type Client interface {
	Ping() *redis.StatusCmd
	HMSet(key string, fields map[string]interface{}) *redis.StatusCmd
	HGetAll(key string) *redis.StringStringMapCmd
	Del(keys ...string) *redis.IntCmd
	Keys(pattern string) *redis.StringSliceCmd
	Close() error
}

// Options configures Connect.
type Options struct {
	Addr     string
	Password string
	DB       int

	// PoolSize defaults to 10.
	PoolSize int
}

// Connect opens a client for opts and verifies it with PING. The client
// is returned even when the ping fails so that callers can keep retrying.
func Connect(opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		IdleTimeout: 300 * time.Second,
		PoolSize:    opts.PoolSize,
	})
	slog.Info("connecting to redis", "addr", opts.Addr, "db", opts.DB)

	if _, err := client.Ping().Result(); err != nil {
		return client, fmt.Errorf("redis %s db %d: %w", opts.Addr, opts.DB, err)
	}
	return client, nil
}

package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultStableAfter is how long a session must run before the backoff is
// reset.
const DefaultStableAfter = 10 * time.Second

// State is the state of a Loop.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateWaiting
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateWaiting:
		return "WAITING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Session establishes a connection and serves it until it fails or ctx
// ends. connected must be called once the connection is usable.
type Session func(ctx context.Context, connected func()) error

// Loop restarts a Session with backoff until its context ends.
type Loop struct {
	Name        string
	Backoff     *Backoff
	StableAfter time.Duration
	Logger      *slog.Logger

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	mu    sync.Mutex
	state State
	since time.Time
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	l.since = time.Now()
}

func (l *Loop) connectedFor() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnected {
		return 0
	}
	return time.Since(l.since)
}

// Run runs session until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context, session Session) error {
	if l.Backoff == nil {
		l.Backoff = NewBackoff()
	}
	if l.StableAfter <= 0 {
		l.StableAfter = DefaultStableAfter
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer l.setState(StateStopped)

	for {
		l.setState(StateConnecting)
		err := session(ctx, func() {
			l.setState(StateConnected)
			logger.Info("connected", slog.String("session", l.Name))
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if l.connectedFor() >= l.StableAfter {
			l.Backoff.Reset()
		}
		if err == nil {
			err = errors.New("session ended")
		}

		delay := l.Backoff.Next()
		l.setState(StateWaiting)
		logger.Warn("session failed, retrying",
			slog.String("session", l.Name),
			slog.Int("attempt", l.Backoff.Attempts()),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if l.OnRetry != nil {
			l.OnRetry(l.Backoff.Attempts(), delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

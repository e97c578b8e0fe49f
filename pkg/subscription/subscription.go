package subscription

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netplatform/pmon-go/pkg/model"
)

// Subscription errors.
var (
	ErrInvalidInterval      = errors.New("invalid subscription interval")
	ErrResourceExhausted    = errors.New("maximum subscriptions reached")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTooManyAttributes    = errors.New("too many attributes in filter")
)

// Default subscription limits.
const (
	DefaultMinInterval         = 1 * time.Second
	DefaultMaxInterval         = 60 * time.Second
	DefaultMaxSubscriptions    = 64
	DefaultMaxAttributesPerSub = 32
)

// HeartbeatMode specifies what content is sent in heartbeat notifications.
type HeartbeatMode uint8

const (
	// HeartbeatEmpty sends only the subscription ID and timestamp.
	HeartbeatEmpty HeartbeatMode = iota

	// HeartbeatFull sends all last notified values.
	HeartbeatFull
)

// String returns the heartbeat mode name.
func (m HeartbeatMode) String() string {
	switch m {
	case HeartbeatEmpty:
		return "EMPTY"
	case HeartbeatFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// Config holds subscription manager configuration.
type Config struct {
	MaxSubscriptions    int
	MaxAttributesPerSub int
	HeartbeatMode       HeartbeatMode
	SuppressBounceBack  bool

	// AutoCorrectIntervals swaps min/max if min > max.
	AutoCorrectIntervals bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions:    DefaultMaxSubscriptions,
		MaxAttributesPerSub: DefaultMaxAttributesPerSub,
		HeartbeatMode:       HeartbeatEmpty,
		SuppressBounceBack:  true,
	}
}

// Filter selects changes. Zero fields match everything.
type Filter struct {
	Type       model.ComponentType `json:"type,omitempty"`
	Component  string              `json:"component,omitempty"`
	Attributes []string            `json:"attributes,omitempty"`
}

// MatchesComponent reports whether c passes the type and name filter.
func (f Filter) MatchesComponent(t model.ComponentType, name string) bool {
	if f.Type != 0 && f.Type != t {
		return false
	}
	return f.Component == "" || f.Component == name
}

// MatchesAttribute reports whether attr passes the attribute filter.
func (f Filter) MatchesAttribute(attr string) bool {
	if len(f.Attributes) == 0 {
		return true
	}
	for _, a := range f.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// Values maps component keys to attribute values.
type Values map[string]map[string]any

func (v Values) set(key, attr string, value any) {
	m, ok := v[key]
	if !ok {
		m = make(map[string]any)
		v[key] = m
	}
	m[attr] = value
}

func (v Values) get(key, attr string) (any, bool) {
	m, ok := v[key]
	if !ok {
		return nil, false
	}
	val, ok := m[attr]
	return val, ok
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for key, attrs := range v {
		for a, val := range attrs {
			out.set(key, a, val)
		}
	}
	return out
}

// Subscription is one client's interest in inventory changes.
type Subscription struct {
	mu sync.RWMutex

	ID          uint32
	Filter      Filter
	MinInterval time.Duration
	MaxInterval time.Duration

	lastNotified      time.Time
	lastValues        Values
	pending           Values
	changeWindowStart time.Time
	hasChanges        bool
	active            bool
}

// NewSubscription creates a subscription.
func NewSubscription(id uint32, filter Filter, minInterval, maxInterval time.Duration) *Subscription {
	return &Subscription{
		ID:           id,
		Filter:       filter,
		MinInterval:  minInterval,
		MaxInterval:  maxInterval,
		lastNotified: time.Now(),
		lastValues:   make(Values),
		pending:      make(Values),
		active:       true,
	}
}

// IsActive returns whether the subscription is active.
func (s *Subscription) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Deactivate marks the subscription as inactive.
func (s *Subscription) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// RecordChange records a change of attr on the component with type t and
// name. It returns true when the change opened a new coalescing window.
func (s *Subscription) RecordChange(t model.ComponentType, name, attr string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.Filter.MatchesComponent(t, name) || !s.Filter.MatchesAttribute(attr) {
		return false
	}

	isNewWindow := !s.hasChanges
	if isNewWindow {
		s.changeWindowStart = time.Now()
	}
	s.pending.set(model.Key(t, name), attr, value)
	s.hasChanges = true
	return isNewWindow
}

// PendingNotification returns the changes to send once the coalescing
// window has elapsed, or nil. Pending changes are cleared.
func (s *Subscription) PendingNotification(suppressBounceBack bool) Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.hasChanges {
		return nil
	}
	if time.Since(s.changeWindowStart) < s.MinInterval {
		return nil
	}

	out := make(Values)
	for key, attrs := range s.pending {
		for attr, value := range attrs {
			if suppressBounceBack {
				if last, ok := s.lastValues.get(key, attr); ok && valuesEqual(last, value) {
					continue
				}
			}
			out.set(key, attr, value)
			s.lastValues.set(key, attr, value)
		}
	}

	s.pending = make(Values)
	s.hasChanges = false
	s.lastNotified = time.Now()

	if len(out) == 0 {
		return nil
	}
	return out
}

// NeedsHeartbeat returns true if MaxInterval elapsed since the last
// notification.
func (s *Subscription) NeedsHeartbeat() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active && time.Since(s.lastNotified) >= s.MaxInterval
}

// RecordHeartbeat records that a heartbeat was sent and returns the last
// notified values.
func (s *Subscription) RecordHeartbeat() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNotified = time.Now()
	return s.lastValues.clone()
}

// SetPrimingValues records the values sent in the priming notification.
func (s *Subscription) SetPrimingValues(values Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, attrs := range values {
		for attr, v := range attrs {
			s.lastValues.set(key, attr, v)
		}
	}
	s.lastNotified = time.Now()
}

// TimeUntilCoalesceExpiry returns the time until the coalescing window
// expires, 0 if nothing is pending.
func (s *Subscription) TimeUntilCoalesceExpiry() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasChanges {
		return 0
	}
	elapsed := time.Since(s.changeWindowStart)
	if elapsed >= s.MinInterval {
		return 0
	}
	return s.MinInterval - elapsed
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

var idGenerator atomic.Uint32

func nextID() uint32 {
	return idGenerator.Add(1)
}

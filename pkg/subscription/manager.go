package subscription

import (
	"strings"
	"sync"
	"time"

	"github.com/netplatform/pmon-go/pkg/model"
)

// Notification is a batch of changes for one subscription.
type Notification struct {
	SubscriptionID uint32    `json:"subscription_id"`
	Changes        Values    `json:"changes,omitempty"`
	IsPriming      bool      `json:"priming,omitempty"`
	IsHeartbeat    bool      `json:"heartbeat,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Manager manages the subscriptions of all stream clients.
type Manager struct {
	mu             sync.RWMutex
	config         Config
	subscriptions  map[uint32]*Subscription
	onNotification func(Notification)
}

// NewManager creates a manager with the default configuration.
func NewManager() *Manager {
	return NewManagerWithConfig(DefaultConfig())
}

// NewManagerWithConfig creates a manager with a custom configuration.
func NewManagerWithConfig(config Config) *Manager {
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if config.MaxAttributesPerSub <= 0 {
		config.MaxAttributesPerSub = DefaultMaxAttributesPerSub
	}
	return &Manager{
		config:        config,
		subscriptions: make(map[uint32]*Subscription),
	}
}

// Attach subscribes the manager to attribute changes of every component in
// inv.
func (m *Manager) Attach(inv *model.Inventory) {
	for _, c := range inv.Components() {
		c.Subscribe(m)
	}
}

// Detach undoes Attach.
func (m *Manager) Detach(inv *model.Inventory) {
	for _, c := range inv.Components() {
		c.Unsubscribe(m)
	}
}

// OnAttributeChanged implements model.ComponentSubscriber.
func (m *Manager) OnAttributeChanged(c *model.Component, attr string, value any) {
	m.NotifyChange(c.Type(), c.Name(), attr, value)
}

var _ model.ComponentSubscriber = (*Manager)(nil)

// Snapshot returns the current readable values of inv that pass filter,
// for use as priming values.
func Snapshot(inv *model.Inventory, filter Filter) Values {
	out := make(Values)
	for _, c := range inv.Components() {
		if !filter.MatchesComponent(c.Type(), c.Name()) {
			continue
		}
		for attr, v := range c.ReadAllAttributes() {
			if filter.MatchesAttribute(attr) {
				out.set(c.Key(), attr, v)
			}
		}
	}
	return out
}

// Subscribe creates a subscription and sends its priming notification
// with current through the callback.
func (m *Manager) Subscribe(filter Filter, minInterval, maxInterval time.Duration, current Values) (uint32, error) {
	if maxInterval <= 0 || minInterval < 0 {
		return 0, ErrInvalidInterval
	}
	if minInterval > maxInterval {
		if !m.config.AutoCorrectIntervals {
			return 0, ErrInvalidInterval
		}
		minInterval, maxInterval = maxInterval, minInterval
	}
	if len(filter.Attributes) > m.config.MaxAttributesPerSub {
		return 0, ErrTooManyAttributes
	}

	m.mu.Lock()
	if len(m.subscriptions) >= m.config.MaxSubscriptions {
		m.mu.Unlock()
		return 0, ErrResourceExhausted
	}
	id := nextID()
	sub := NewSubscription(id, filter, minInterval, maxInterval)
	priming := filterValues(current, filter)
	sub.SetPrimingValues(priming)
	m.subscriptions[id] = sub
	onNotify := m.onNotification
	m.mu.Unlock()

	if onNotify != nil && len(priming) > 0 {
		onNotify(Notification{
			SubscriptionID: id,
			Changes:        priming,
			IsPriming:      true,
			Timestamp:      time.Now(),
		})
	}
	return id, nil
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.Deactivate()
	delete(m.subscriptions, id)
	return nil
}

// NotifyChange records a change for every matching subscription.
func (m *Manager) NotifyChange(t model.ComponentType, name, attr string, value any) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.RecordChange(t, name, attr, value)
	}
}

// ProcessNotifications sends due notifications and heartbeats. Call it
// periodically, e.g. every MinInterval.
func (m *Manager) ProcessNotifications() {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	onNotify := m.onNotification
	config := m.config
	m.mu.RUnlock()

	if onNotify == nil {
		return
	}

	for _, sub := range subs {
		if changes := sub.PendingNotification(config.SuppressBounceBack); changes != nil {
			onNotify(Notification{
				SubscriptionID: sub.ID,
				Changes:        changes,
				Timestamp:      time.Now(),
			})
		}

		if sub.NeedsHeartbeat() {
			n := Notification{
				SubscriptionID: sub.ID,
				IsHeartbeat:    true,
				Timestamp:      time.Now(),
			}
			last := sub.RecordHeartbeat()
			if config.HeartbeatMode == HeartbeatFull {
				n.Changes = last
			}
			onNotify(n)
		}
	}
}

// ClearAll removes all subscriptions.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscriptions {
		sub.Deactivate()
	}
	m.subscriptions = make(map[uint32]*Subscription)
}

// Count returns the number of subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Get returns a subscription by ID.
func (m *Manager) Get(id uint32) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// OnNotification sets the notification callback.
func (m *Manager) OnNotification(fn func(Notification)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNotification = fn
}

// filterValues returns the values that pass filter.
func filterValues(values Values, filter Filter) Values {
	out := make(Values)
	for key, attrs := range values {
		t, name, ok := splitKey(key)
		if ok && !filter.MatchesComponent(t, name) {
			continue
		}
		for attr, v := range attrs {
			if filter.MatchesAttribute(attr) {
				out.set(key, attr, v)
			}
		}
	}
	return out
}

func splitKey(key string) (model.ComponentType, string, bool) {
	typ, name, ok := strings.Cut(key, "/")
	if !ok {
		return 0, "", false
	}
	t, err := model.ParseComponentType(typ)
	if err != nil {
		return 0, "", false
	}
	return t, name, true
}

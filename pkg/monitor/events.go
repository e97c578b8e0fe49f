package monitor

import (
	"sync"

	"github.com/netplatform/pmon-go/pkg/inventory"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// sink turns presence and status attribute changes into platform events.
type sink struct {
	m *Monitor

	mu     sync.Mutex
	status map[string]string
}

func newSink(m *Monitor) *sink {
	return &sink{m: m, status: make(map[string]string)}
}

// prime records the current status of every component so the first change
// carries the old value.
func (s *sink) prime(inv *model.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range inv.Components() {
		if v, err := c.ReadAttribute(inventory.AttrStatus); err == nil {
			if st, ok := v.(string); ok {
				s.status[c.Key()] = st
			}
		}
	}
}

func (s *sink) attach(inv *model.Inventory) {
	for _, c := range inv.Components() {
		c.Subscribe(s)
	}
}

func (s *sink) detach(inv *model.Inventory) {
	for _, c := range inv.Components() {
		c.Unsubscribe(s)
	}
}

// OnAttributeChanged implements model.ComponentSubscriber.
func (s *sink) OnAttributeChanged(c *model.Component, attr string, value any) {
	switch attr {
	case inventory.AttrPresence:
		present, ok := value.(bool)
		if !ok {
			return
		}
		ev := eventlog.NewEvent(eventlog.KindPresence, c.Type(), c.Name())
		port := -1
		if c.Type() == model.ComponentTransceiver {
			if v, err := c.ReadAttribute(inventory.AttrPort); err == nil {
				if p, ok := v.(int); ok {
					port = p
				}
			}
		} else if !present {
			ev.Severity = eventlog.SeverityWarning
		}
		ev.Presence = &eventlog.PresenceEvent{Present: present, Port: port}
		s.m.emit(ev)

	case inventory.AttrStatus:
		st, ok := value.(string)
		if !ok {
			return
		}
		s.mu.Lock()
		old := s.status[c.Key()]
		s.status[c.Key()] = st
		s.mu.Unlock()
		if old == st {
			return
		}
		ev := eventlog.NewEvent(eventlog.KindStatus, c.Type(), c.Name())
		if st != platform.StatusOK.String() {
			ev.Severity = eventlog.SeverityWarning
		}
		ev.Status = &eventlog.StatusEvent{OldStatus: old, NewStatus: st}
		s.m.emit(ev)
	}
}

var _ model.ComponentSubscriber = (*sink)(nil)

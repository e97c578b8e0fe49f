// Package hostsvc controls host services through the systemd D-Bus API.
package hostsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	systemdService = "org.freedesktop.systemd1"
	systemdPath    = "/org/freedesktop/systemd1"
	managerIface   = systemdService + ".Manager"
	unitIface      = systemdService + ".Unit"
)

// Unit active states reported by systemd.
const (
	StateActive       = "active"
	StateReloading    = "reloading"
	StateInactive     = "inactive"
	StateFailed       = "failed"
	StateActivating   = "activating"
	StateDeactivating = "deactivating"
)

// ErrUnitFailed is returned by WaitActive when the unit entered the failed
// state.
var ErrUnitFailed = errors.New("unit failed")

// Manager restarts units and reports their state.
type Manager interface {
	RestartUnit(ctx context.Context, unit string) error
	ActiveState(ctx context.Context, unit string) (string, error)
}

// Systemd talks to the systemd manager on the system bus.
type Systemd struct {
	manager dbus.BusObject
	object  func(path dbus.ObjectPath) dbus.BusObject
}

// NewSystemd connects to the system bus.
func NewSystemd() (*Systemd, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return newSystemd(func(path dbus.ObjectPath) dbus.BusObject {
		return conn.Object(systemdService, path)
	}), nil
}

func newSystemd(object func(dbus.ObjectPath) dbus.BusObject) *Systemd {
	return &Systemd{manager: object(systemdPath), object: object}
}

// RestartUnit queues a restart of unit, replacing conflicting jobs.
func (s *Systemd) RestartUnit(ctx context.Context, unit string) error {
	var job dbus.ObjectPath
	err := s.manager.CallWithContext(ctx, managerIface+".RestartUnit", 0, unit, "replace").Store(&job)
	if err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	return nil
}

// ActiveState returns the ActiveState property of unit, e.g. "active".
func (s *Systemd) ActiveState(ctx context.Context, unit string) (string, error) {
	var path dbus.ObjectPath
	if err := s.manager.CallWithContext(ctx, managerIface+".LoadUnit", 0, unit).Store(&path); err != nil {
		return "", fmt.Errorf("load %s: %w", unit, err)
	}
	v, err := s.object(path).GetProperty(unitIface + ".ActiveState")
	if err != nil {
		return "", fmt.Errorf("state of %s: %w", unit, err)
	}
	state, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("state of %s: unexpected type %s", unit, v.Signature())
	}
	return state, nil
}

// WaitActive polls the state of unit until it is active, failed or ctx is
// done.
func WaitActive(ctx context.Context, m Manager, unit string, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		state, err := m.ActiveState(ctx, unit)
		if err != nil {
			return err
		}
		switch state {
		case StateActive:
			return nil
		case StateFailed:
			return fmt.Errorf("%s: %w", unit, ErrUnitFailed)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s still %s: %w", unit, state, ctx.Err())
		case <-t.C:
		}
	}
}

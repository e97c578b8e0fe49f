package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Inventory is the model of one switch together with the typed components
// bound to its platform devices.
type Inventory struct {
	*model.Inventory

	Chassis      *Chassis
	FanDrawers   []*FanDrawer
	Fans         []*Fan // all fans, including drawer and PSU fans
	PSUs         []*PSU
	Thermals     []*Thermal
	Transceivers []*Transceiver
	Firmware     []*Firmware
	Watchdog     *Watchdog // nil without a watchdog

	byPort map[int]*Transceiver
}

// Build creates the inventory for ch. Nothing is read from hardware; call
// Refresh or the per-type refresh methods afterwards.
func Build(ch platform.Chassis, platformName, hwsku string) (*Inventory, error) {
	inv := &Inventory{
		Inventory: model.NewInventory(platformName, hwsku),
		Chassis:   NewChassis(ch, platformName, hwsku),
		byPort:    make(map[int]*Transceiver),
	}
	add := func(c *model.Component) error {
		if err := inv.Add(c); err != nil {
			return fmt.Errorf("%s: %w", c.Key(), err)
		}
		return nil
	}
	if err := add(inv.Chassis.Component); err != nil {
		return nil, err
	}

	for _, d := range ch.FanDrawers() {
		drawer := NewFanDrawer(d)
		inv.FanDrawers = append(inv.FanDrawers, drawer)
		inv.Fans = append(inv.Fans, drawer.Fans()...)
		if err := add(drawer.Component); err != nil {
			return nil, err
		}
	}
	for _, f := range ch.Fans() {
		inv.Fans = append(inv.Fans, NewFan(f))
	}
	for _, p := range ch.PSUs() {
		psu := NewPSU(p)
		inv.PSUs = append(inv.PSUs, psu)
		inv.Fans = append(inv.Fans, psu.Fans()...)
		if err := add(psu.Component); err != nil {
			return nil, err
		}
	}
	for _, f := range inv.Fans {
		if err := add(f.Component); err != nil {
			return nil, err
		}
	}
	for _, t := range ch.Thermals() {
		th := NewThermal(t)
		inv.Thermals = append(inv.Thermals, th)
		if err := add(th.Component); err != nil {
			return nil, err
		}
	}
	for _, x := range ch.Transceivers() {
		xcvr := NewTransceiver(x)
		inv.Transceivers = append(inv.Transceivers, xcvr)
		inv.byPort[x.Port()] = xcvr
		if err := add(xcvr.Component); err != nil {
			return nil, err
		}
	}
	for _, c := range ch.Components() {
		fw := NewFirmware(c)
		inv.Firmware = append(inv.Firmware, fw)
		if err := add(fw.Component); err != nil {
			return nil, err
		}
	}
	if wd := ch.Watchdog(); wd != nil {
		inv.Watchdog = NewWatchdog(wd)
		if err := add(inv.Watchdog.Component); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Transceiver returns the transceiver at port, or nil.
func (inv *Inventory) Transceiver(port int) *Transceiver {
	return inv.byPort[port]
}

// RefreshFans refreshes fan drawers and fans.
func (inv *Inventory) RefreshFans(ctx context.Context) error {
	var errs []error
	for _, d := range inv.FanDrawers {
		errs = append(errs, d.Refresh(ctx))
	}
	for _, f := range inv.Fans {
		errs = append(errs, f.Refresh(ctx))
	}
	return errors.Join(errs...)
}

// RefreshPSUs refreshes power supplies.
func (inv *Inventory) RefreshPSUs(ctx context.Context) error {
	var errs []error
	for _, p := range inv.PSUs {
		errs = append(errs, p.Refresh(ctx))
	}
	return errors.Join(errs...)
}

// RefreshThermals refreshes temperature sensors.
func (inv *Inventory) RefreshThermals(ctx context.Context) error {
	var errs []error
	for _, t := range inv.Thermals {
		errs = append(errs, t.Refresh(ctx))
	}
	return errors.Join(errs...)
}

// RefreshTransceivers refreshes every transceiver, including presence.
func (inv *Inventory) RefreshTransceivers(ctx context.Context) error {
	var errs []error
	for _, x := range inv.Transceivers {
		errs = append(errs, x.Refresh(ctx))
	}
	return errors.Join(errs...)
}

// RefreshDOM re-reads present transceivers only.
func (inv *Inventory) RefreshDOM(ctx context.Context) error {
	var errs []error
	for _, x := range inv.Transceivers {
		if x.Present() {
			errs = append(errs, x.SetPresence(ctx, true))
		}
	}
	return errors.Join(errs...)
}

// RefreshSystem refreshes the chassis LED, firmware versions and the
// watchdog.
func (inv *Inventory) RefreshSystem(ctx context.Context) error {
	errs := []error{inv.Chassis.Refresh(ctx)}
	for _, fw := range inv.Firmware {
		errs = append(errs, fw.Refresh(ctx))
	}
	if inv.Watchdog != nil {
		errs = append(errs, inv.Watchdog.Refresh(ctx))
	}
	return errors.Join(errs...)
}

// Refresh reads everything, including the system EEPROM.
func (inv *Inventory) Refresh(ctx context.Context) error {
	return errors.Join(
		inv.Chassis.LoadEEPROM(ctx),
		inv.RefreshSystem(ctx),
		inv.RefreshFans(ctx),
		inv.RefreshPSUs(ctx),
		inv.RefreshThermals(ctx),
		inv.RefreshTransceivers(ctx),
	)
}

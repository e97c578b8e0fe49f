package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Chassis wraps the chassis component. The system EEPROM is read once.
type Chassis struct {
	*model.Component
	dev platform.Chassis

	mu     sync.Mutex
	eeprom *onie.Info
}

// NewChassis creates the chassis component.
func NewChassis(dev platform.Chassis, platformName, hwsku string) *Chassis {
	c := model.NewComponent(model.ComponentChassis, dev.Name())
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name: AttrPlatform, Type: model.DataTypeString, Access: model.AccessRead, Default: platformName,
	}))
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name: AttrHwSKU, Type: model.DataTypeString, Access: model.AccessRead, Default: hwsku,
	}))
	addString(c, AttrModel, "Product name")
	addString(c, AttrPartNumber, "Part number")
	addString(c, AttrSerial, "Serial number")
	addString(c, AttrBaseMAC, "Base MAC address")
	addString(c, AttrRebootCause, "Cause of the last reboot")
	if dev.StatusLED() != nil {
		addString(c, AttrLEDColor, "System status LED color")
		c.AddCommand(newSetLEDCommand(dev.StatusLED()))
	}
	return &Chassis{Component: c, dev: dev}
}

// Device returns the bound platform chassis.
func (c *Chassis) Device() platform.Chassis {
	return c.dev
}

// SysEEPROM returns the system EEPROM read by LoadEEPROM, or nil.
func (c *Chassis) SysEEPROM() *onie.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eeprom
}

// LoadEEPROM reads the system EEPROM and fills the identity attributes. A
// CRC mismatch is logged and the decoded fields are kept.
func (c *Chassis) LoadEEPROM(ctx context.Context) error {
	info, err := c.dev.SysEEPROM(ctx)
	if err != nil && (info == nil || !errors.Is(err, onie.ErrBadCRC)) {
		r := &reading{}
		r.set(c.Component, AttrSerial, nil, err)
		return r.err()
	}
	if err != nil {
		slog.Warn("system EEPROM CRC mismatch", "error", err)
	}

	c.mu.Lock()
	c.eeprom = info
	c.mu.Unlock()

	r := &reading{}
	r.set(c.Component, AttrModel, info.ProductName(), nil)
	r.set(c.Component, AttrPartNumber, info.PartNumber(), nil)
	r.set(c.Component, AttrSerial, info.SerialNumber(), nil)
	mac, merr := info.BaseMAC()
	if merr == nil {
		r.set(c.Component, AttrBaseMAC, mac.String(), nil)
	}
	return r.err()
}

// Serial returns the chassis serial number, or "".
func (c *Chassis) Serial() string {
	v, _ := c.ReadAttribute(AttrSerial)
	s, _ := v.(string)
	return s
}

// SetRebootCause records the determined reboot cause.
func (c *Chassis) SetRebootCause(rc platform.RebootCause) error {
	s := rc.Cause
	if rc.Detail != "" {
		s += " (" + rc.Detail + ")"
	}
	return c.SetAttributeInternal(AttrRebootCause, s)
}

// Refresh reads the status LED.
func (c *Chassis) Refresh(ctx context.Context) error {
	r := &reading{}
	readLED(r, c.Component, ctx, c.dev.StatusLED())
	return r.err()
}

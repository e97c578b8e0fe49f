package inventory

import (
	"context"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// PSU wraps a power supply component bound to a platform PSU.
type PSU struct {
	*model.Component
	dev  platform.PSU
	fans []*Fan
}

// NewPSU creates a PSU component and one Fan per PSU fan.
func NewPSU(dev platform.PSU) *PSU {
	c := model.NewComponent(model.ComponentPSU, dev.Name())
	addDevice(c)
	addBool(c, AttrPowerGood, "Output power is good")
	addFloat(c, AttrVoltage, "V", "Output voltage")
	addFloat(c, AttrCurrent, "A", "Output current")
	addFloat(c, AttrPower, "W", "Output power")
	addFloat(c, AttrTemperature, "C", "Temperature")
	if dev.LED() != nil {
		addString(c, AttrLEDColor, "Status LED color")
		c.AddCommand(newSetLEDCommand(dev.LED()))
	}

	p := &PSU{Component: c, dev: dev}
	for _, f := range dev.Fans() {
		fan := NewFan(f)
		fan.SetParent(c.Key())
		p.fans = append(p.fans, fan)
	}
	return p
}

// Device returns the bound platform PSU.
func (p *PSU) Device() platform.PSU {
	return p.dev
}

// Fans returns the fans built into the PSU.
func (p *PSU) Fans() []*Fan {
	return p.fans
}

// Refresh reads the PSU and updates its attributes.
func (p *PSU) Refresh(ctx context.Context) error {
	r := &reading{}
	if readDevice(r, p.Component, ctx, p.dev) {
		good, err := p.dev.PowerGood(ctx)
		r.set(p.Component, AttrPowerGood, good, err)
		v, err := p.dev.Voltage(ctx)
		r.set(p.Component, AttrVoltage, v, err)
		a, err := p.dev.Current(ctx)
		r.set(p.Component, AttrCurrent, a, err)
		w, err := p.dev.Power(ctx)
		r.set(p.Component, AttrPower, w, err)
		t, err := p.dev.Temperature(ctx)
		r.set(p.Component, AttrTemperature, t, err)
	} else {
		for _, name := range []string{AttrPowerGood, AttrVoltage, AttrCurrent, AttrPower, AttrTemperature} {
			_ = p.SetAttributeInternal(name, nil)
		}
	}
	readLED(r, p.Component, ctx, p.dev.LED())
	return r.err()
}

// Voltage returns the last output voltage.
func (p *PSU) Voltage() (float64, bool) {
	return floatAttr(p.Component, AttrVoltage)
}

// Current returns the last output current.
func (p *PSU) Current() (float64, bool) {
	return floatAttr(p.Component, AttrCurrent)
}

// Power returns the last output power.
func (p *PSU) Power() (float64, bool) {
	return floatAttr(p.Component, AttrPower)
}

// Present returns the last read presence.
func (p *PSU) Present() bool {
	v, _ := p.ReadAttribute(AttrPresence)
	b, _ := v.(bool)
	return b
}

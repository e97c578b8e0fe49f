package inventory

import (
	"context"
	"fmt"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Fan wraps a fan component bound to a platform fan.
type Fan struct {
	*model.Component
	dev platform.Fan
}

// NewFan creates a fan component for dev.
func NewFan(dev platform.Fan) *Fan {
	c := model.NewComponent(model.ComponentFan, dev.Name())
	addDevice(c)
	addPercent(c, AttrSpeed, "Measured speed")
	addPercent(c, AttrTargetSpeed, "Requested speed")
	addPercent(c, AttrTolerance, "Allowed deviation from the requested speed")
	addEnum(c, AttrDirection, []string{
		platform.FanDirectionIntake.String(),
		platform.FanDirectionExhaust.String(),
		platform.FanDirectionUnknown.String(),
	}, "Airflow direction")
	if dev.LED() != nil {
		addString(c, AttrLEDColor, "Status LED color")
	}

	f := &Fan{Component: c, dev: dev}
	c.AddCommand(model.NewCommand(&model.CommandMetadata{
		Name:        CmdSetSpeed,
		Description: "Set the fan speed in percent",
		Parameters:  []model.ParameterMetadata{{Name: ParamPercent, Type: model.DataTypeInt, Required: true}},
	}, f.handleSetSpeed))
	if dev.LED() != nil {
		c.AddCommand(newSetLEDCommand(dev.LED()))
	}
	return f
}

// Device returns the bound platform fan.
func (f *Fan) Device() platform.Fan {
	return f.dev
}

// Refresh reads the fan and updates its attributes.
func (f *Fan) Refresh(ctx context.Context) error {
	r := &reading{}
	if readDevice(r, f.Component, ctx, f.dev) {
		speed, err := f.dev.SpeedPercent(ctx)
		r.set(f.Component, AttrSpeed, speed, err)
		target, err := f.dev.TargetSpeedPercent(ctx)
		r.set(f.Component, AttrTargetSpeed, target, err)
		tol, err := f.dev.SpeedTolerance(ctx)
		r.set(f.Component, AttrTolerance, tol, err)
		dir, err := f.dev.Direction(ctx)
		r.set(f.Component, AttrDirection, dir.String(), err)
	} else {
		for _, name := range []string{AttrSpeed, AttrTargetSpeed, AttrDirection} {
			_ = f.SetAttributeInternal(name, nil)
		}
	}
	readLED(r, f.Component, ctx, f.dev.LED())
	return r.err()
}

// Present returns the last read presence.
func (f *Fan) Present() bool {
	v, _ := f.ReadAttribute(AttrPresence)
	b, _ := v.(bool)
	return b
}

// Healthy reports whether the fan was present and OK at the last refresh.
func (f *Fan) Healthy() bool {
	v, _ := f.ReadAttribute(AttrStatus)
	return f.Present() && v == platform.StatusOK.String()
}

// Speed returns the last read speed, or -1 when unknown.
func (f *Fan) Speed() int {
	return intAttr(f.Component, AttrSpeed)
}

// TargetSpeed returns the last read target speed, or -1 when unknown.
func (f *Fan) TargetSpeed() int {
	return intAttr(f.Component, AttrTargetSpeed)
}

func (f *Fan) handleSetSpeed(ctx context.Context, params map[string]any) (map[string]any, error) {
	percent, ok := toInt(params[ParamPercent])
	if !ok {
		return nil, fmt.Errorf("%w: percent must be an integer", model.ErrInvalidParameters)
	}
	if err := f.dev.SetSpeedPercent(ctx, percent); err != nil {
		return nil, err
	}
	_ = f.SetAttributeInternal(AttrTargetSpeed, percent)
	return map[string]any{ParamPercent: percent}, nil
}

// FanDrawer wraps a fan drawer component bound to a platform fan drawer.
type FanDrawer struct {
	*model.Component
	dev  platform.FanDrawer
	fans []*Fan
}

// NewFanDrawer creates a fan drawer component and one Fan per drawer fan.
// The fans carry the drawer key as their parent.
func NewFanDrawer(dev platform.FanDrawer) *FanDrawer {
	c := model.NewComponent(model.ComponentFanDrawer, dev.Name())
	addDevice(c)
	if dev.LED() != nil {
		addString(c, AttrLEDColor, "Status LED color")
		c.AddCommand(newSetLEDCommand(dev.LED()))
	}
	d := &FanDrawer{Component: c, dev: dev}
	for _, f := range dev.Fans() {
		fan := NewFan(f)
		fan.SetParent(c.Key())
		d.fans = append(d.fans, fan)
	}
	return d
}

// Fans returns the fans of the drawer.
func (d *FanDrawer) Fans() []*Fan {
	return d.fans
}

// Refresh reads the drawer. Its fans are refreshed separately.
func (d *FanDrawer) Refresh(ctx context.Context) error {
	r := &reading{}
	readDevice(r, d.Component, ctx, d.dev)
	readLED(r, d.Component, ctx, d.dev.LED())
	return r.err()
}

func newSetLEDCommand(led platform.LED) *model.Command {
	return model.NewCommand(&model.CommandMetadata{
		Name:        CmdSetLED,
		Description: "Set the LED color",
		Parameters:  []model.ParameterMetadata{{Name: ParamColor, Type: model.DataTypeString, Required: true}},
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		color := platform.Color(params[ParamColor].(string))
		if err := led.SetColor(ctx, color); err != nil {
			return nil, err
		}
		return map[string]any{ParamColor: string(color)}, nil
	})
}

func intAttr(c *model.Component, name string) int {
	v, err := c.ReadAttribute(name)
	if err != nil {
		return -1
	}
	n, ok := toInt(v)
	if !ok {
		return -1
	}
	return n
}

// toInt accepts integers and whole floats, as decoded from JSON.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint8:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func floatAttr(c *model.Component, name string) (float64, bool) {
	v, err := c.ReadAttribute(name)
	if err != nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

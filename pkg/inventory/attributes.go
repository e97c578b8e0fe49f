package inventory

import (
	"context"
	"errors"
	"math"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Attribute names shared across component types.
const (
	AttrPresence    = "presence"
	AttrStatus      = "status"
	AttrModel       = "model"
	AttrSerial      = "serial"
	AttrLEDColor    = "led"
	AttrTemperature = "temperature"
	AttrVoltage     = "voltage"

	// Fan
	AttrSpeed       = "speed"
	AttrTargetSpeed = "target_speed"
	AttrTolerance   = "speed_tolerance"
	AttrDirection   = "direction"

	// PSU
	AttrCurrent   = "current"
	AttrPower     = "power"
	AttrPowerGood = "power_good"

	// Thermal
	AttrHighThreshold         = "high_threshold"
	AttrLowThreshold          = "low_threshold"
	AttrHighCriticalThreshold = "high_critical_threshold"

	// Transceiver
	AttrPort         = "port"
	AttrType         = "type"
	AttrVendor       = "vendor"
	AttrRevision     = "revision"
	AttrLowPowerMode = "lpmode"
	AttrRxPower      = "rx_power"
	AttrTxPower      = "tx_power"

	// Chassis
	AttrPartNumber  = "part_number"
	AttrBaseMAC     = "base_mac"
	AttrPlatform    = "platform"
	AttrHwSKU       = "hwsku"
	AttrRebootCause = "reboot_cause"

	// Firmware
	AttrVersion     = "version"
	AttrDescription = "description"

	// Watchdog
	AttrArmed     = "armed"
	AttrRemaining = "remaining"
)

// Command names.
const (
	CmdReset     = "reset"
	CmdSetLPMode = "set_lpmode"
	CmdSetSpeed  = "set_speed"
	CmdSetLED    = "set_led"
	CmdInstall   = "install"
	CmdArm       = "arm"
	CmdDisarm    = "disarm"
)

// Command parameters.
const (
	ParamEnable  = "enable"
	ParamPercent = "percent"
	ParamColor   = "color"
	ParamImage   = "image"
	ParamSeconds = "seconds"
)

var statusValues = []string{
	platform.StatusOK.String(),
	platform.StatusNotOK.String(),
	platform.StatusNotPresent.String(),
	platform.StatusUnknown.String(),
}

func addBool(c *model.Component, name, desc string) {
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        name,
		Type:        model.DataTypeBool,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		Description: desc,
	}))
}

func addString(c *model.Component, name, desc string) {
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        name,
		Type:        model.DataTypeString,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		Description: desc,
	}))
}

func addFloat(c *model.Component, name, unit, desc string) {
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        name,
		Type:        model.DataTypeFloat,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		Unit:        unit,
		Description: desc,
	}))
}

func addPercent(c *model.Component, name, desc string) {
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        name,
		Type:        model.DataTypeInt,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		MinValue:    0,
		MaxValue:    100,
		Unit:        "%",
		Description: desc,
	}))
}

func addEnum(c *model.Component, name string, values []string, desc string) {
	c.AddAttribute(model.NewAttribute(&model.AttributeMetadata{
		Name:        name,
		Type:        model.DataTypeEnum,
		Access:      model.AccessReadOnly,
		Nullable:    true,
		Values:      values,
		Description: desc,
	}))
}

// addDevice adds the attributes every platform.Device has.
func addDevice(c *model.Component) {
	addBool(c, AttrPresence, "Whether the unit is inserted")
	addEnum(c, AttrStatus, statusValues, "Operational status")
	addString(c, AttrModel, "Model or part number")
	addString(c, AttrSerial, "Serial number")
}

// reading collects the result of one device read.
type reading struct {
	errs []error
}

// value returns v, or nil when err is set. Unexpected errors are kept for
// the caller; ErrNotSupported and ErrNotPresent are expected.
func (r *reading) value(v any, err error) any {
	if err != nil {
		if !errors.Is(err, platform.ErrNotSupported) && !errors.Is(err, platform.ErrNotPresent) {
			r.errs = append(r.errs, err)
		}
		return nil
	}
	if f, ok := v.(float64); ok {
		return round3(f)
	}
	return v
}

func (r *reading) set(c *model.Component, name string, v any, err error) {
	if serr := c.SetAttributeInternal(name, r.value(v, err)); serr != nil {
		r.errs = append(r.errs, serr)
	}
}

func (r *reading) err() error {
	return errors.Join(r.errs...)
}

// round3 keeps sensor noise below a millidegree from producing changes.
func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func readDevice(r *reading, c *model.Component, ctx context.Context, dev platform.Device) bool {
	present, err := dev.Presence(ctx)
	r.set(c, AttrPresence, present, err)
	if err == nil && !present {
		_ = c.SetAttributeInternal(AttrStatus, platform.StatusNotPresent.String())
		_ = c.SetAttributeInternal(AttrModel, nil)
		_ = c.SetAttributeInternal(AttrSerial, nil)
		return false
	}
	status, err := dev.Status(ctx)
	r.set(c, AttrStatus, status.String(), err)
	m, err := dev.Model(ctx)
	r.set(c, AttrModel, m, err)
	s, err := dev.Serial(ctx)
	r.set(c, AttrSerial, s, err)
	return true
}

func readLED(r *reading, c *model.Component, ctx context.Context, led platform.LED) {
	if led == nil {
		return
	}
	color, err := led.Color(ctx)
	r.set(c, AttrLEDColor, string(color), err)
}

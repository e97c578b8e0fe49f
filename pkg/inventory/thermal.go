package inventory

import (
	"context"

	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Thermal wraps a temperature sensor component.
type Thermal struct {
	*model.Component
	dev platform.Thermal
}

// NewThermal creates a thermal component for dev.
func NewThermal(dev platform.Thermal) *Thermal {
	c := model.NewComponent(model.ComponentThermal, dev.Name())
	addFloat(c, AttrTemperature, "C", "Current temperature")
	addFloat(c, AttrHighThreshold, "C", "High threshold")
	addFloat(c, AttrLowThreshold, "C", "Low threshold")
	addFloat(c, AttrHighCriticalThreshold, "C", "High critical threshold")
	return &Thermal{Component: c, dev: dev}
}

// Device returns the bound platform thermal.
func (t *Thermal) Device() platform.Thermal {
	return t.dev
}

// Refresh reads the sensor and its thresholds.
func (t *Thermal) Refresh(ctx context.Context) error {
	r := &reading{}
	v, err := t.dev.Temperature(ctx)
	r.set(t.Component, AttrTemperature, v, err)
	v, err = t.dev.HighThreshold(ctx)
	r.set(t.Component, AttrHighThreshold, v, err)
	v, err = t.dev.LowThreshold(ctx)
	r.set(t.Component, AttrLowThreshold, v, err)
	v, err = t.dev.HighCriticalThreshold(ctx)
	r.set(t.Component, AttrHighCriticalThreshold, v, err)
	return r.err()
}

// Temperature returns the last reading.
func (t *Thermal) Temperature() (float64, bool) {
	return floatAttr(t.Component, AttrTemperature)
}

// High returns the last high threshold.
func (t *Thermal) High() (float64, bool) {
	return floatAttr(t.Component, AttrHighThreshold)
}

// Low returns the last low threshold.
func (t *Thermal) Low() (float64, bool) {
	return floatAttr(t.Component, AttrLowThreshold)
}

// HighCritical returns the last high critical threshold.
func (t *Thermal) HighCritical() (float64, bool) {
	return floatAttr(t.Component, AttrHighCriticalThreshold)
}

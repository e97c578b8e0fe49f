// Package thermalctl implements the fan control policy.
//
// All fans run at the default speed unless
//   - a fan is absent or faulty,
//   - a sensor is at or above its high threshold, or
//   - a sensor is at or above its critical threshold,
//
// in which case every fan runs at the maximum speed. A critical reading
// also triggers the OnCritical callback once per excursion.
package thermalctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/netplatform/pmon-go/pkg/inventory"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// Default speeds in percent.
const (
	DefaultSpeed = 60
	MaxSpeed     = 100
)

// Reason explains a speed decision.
type Reason string

const (
	ReasonDefault  Reason = "default"
	ReasonFanFault Reason = "fan fault"
	ReasonHigh     Reason = "high temperature"
	ReasonCritical Reason = "critical temperature"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Speed  int
	Reason Reason

	// Source names the fan or sensor that caused the decision.
	Source string
}

// Level classifies a temperature against the sensor thresholds.
type Level uint8

const (
	LevelNormal Level = iota
	LevelLow
	LevelHigh
	LevelCritical
)

// String returns the threshold name used in events.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Classify returns the level of t and the limit it crossed. Missing
// readings or thresholds count as normal.
func Classify(t *inventory.Thermal) (Level, float64) {
	temp, ok := t.Temperature()
	if !ok {
		return LevelNormal, 0
	}
	if crit, ok := t.HighCritical(); ok && temp >= crit {
		return LevelCritical, crit
	}
	if high, ok := t.High(); ok && temp >= high {
		return LevelHigh, high
	}
	if low, ok := t.Low(); ok && temp < low {
		return LevelLow, low
	}
	return LevelNormal, 0
}

// Config configures a Controller.
type Config struct {
	// DefaultSpeed is used while everything is normal. Zero means 60.
	DefaultSpeed int

	// MaxSpeed is used on faults and high temperature. Zero means 100.
	MaxSpeed int

	// OnCritical is called when a sensor reaches its critical threshold.
	OnCritical func(sensor string, temp, limit float64)

	// Events receives threshold events. May be nil.
	Events eventlog.Logger

	Platform string
	Logger   *slog.Logger
}

// Controller applies the policy to an inventory.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	applied int
	levels  map[string]Level
}

// New creates a controller.
func New(cfg Config) *Controller {
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = DefaultSpeed
	}
	if cfg.MaxSpeed <= 0 || cfg.MaxSpeed > 100 {
		cfg.MaxSpeed = MaxSpeed
	}
	if cfg.Events == nil {
		cfg.Events = eventlog.NoopLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg, applied: -1, levels: make(map[string]Level)}
}

// Applied returns the speed last applied, or -1.
func (c *Controller) Applied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Evaluate decides the fan speed. It does not change any state.
func (c *Controller) Evaluate(fans []*inventory.Fan, thermals []*inventory.Thermal) Decision {
	for _, f := range fans {
		if !f.Healthy() {
			return Decision{Speed: c.cfg.MaxSpeed, Reason: ReasonFanFault, Source: f.Name()}
		}
	}
	var high *inventory.Thermal
	for _, t := range thermals {
		switch lvl, _ := Classify(t); lvl {
		case LevelCritical:
			return Decision{Speed: MaxSpeed, Reason: ReasonCritical, Source: t.Name()}
		case LevelHigh:
			if high == nil {
				high = t
			}
		}
	}
	if high != nil {
		return Decision{Speed: c.cfg.MaxSpeed, Reason: ReasonHigh, Source: high.Name()}
	}
	return Decision{Speed: c.cfg.DefaultSpeed, Reason: ReasonDefault}
}

// Run evaluates the policy, sets the fans when the speed changes and
// emits events for threshold crossings.
func (c *Controller) Run(ctx context.Context, fans []*inventory.Fan, thermals []*inventory.Thermal) (Decision, error) {
	d := c.Evaluate(fans, thermals)

	c.mu.Lock()
	changed := d.Speed != c.applied
	c.mu.Unlock()

	var err error
	if changed {
		err = c.apply(ctx, fans, d)
	}
	c.track(thermals, d)
	return d, err
}

// apply sets every present fan. Fans that cannot be controlled are
// skipped.
func (c *Controller) apply(ctx context.Context, fans []*inventory.Fan, d Decision) error {
	var errs []error
	for _, f := range fans {
		if !f.Present() {
			continue
		}
		_, err := f.InvokeCommand(ctx, inventory.CmdSetSpeed, map[string]any{inventory.ParamPercent: d.Speed})
		if err != nil && !errors.Is(err, platform.ErrNotSupported) {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.mu.Lock()
	prev := c.applied
	c.applied = d.Speed
	c.mu.Unlock()

	c.cfg.Logger.Info("fan speed changed",
		slog.Int("from", prev),
		slog.Int("to", d.Speed),
		slog.String("reason", string(d.Reason)),
		slog.String("source", d.Source))
	return nil
}

// track emits an event whenever a sensor changes level.
func (c *Controller) track(thermals []*inventory.Thermal, d Decision) {
	for _, t := range thermals {
		lvl, limit := Classify(t)
		temp, _ := t.Temperature()

		c.mu.Lock()
		prev := c.levels[t.Name()]
		c.levels[t.Name()] = lvl
		c.mu.Unlock()
		if lvl == prev {
			continue
		}

		ev := eventlog.NewEvent(eventlog.KindThreshold, model.ComponentThermal, t.Name())
		ev.Platform = c.cfg.Platform
		if lvl == LevelNormal {
			ev.Threshold = &eventlog.ThresholdEvent{
				Threshold: prev.String(),
				Value:     temp,
				Limit:     c.limitOf(t, prev),
				Cleared:   true,
				FanSpeed:  d.Speed,
			}
		} else {
			ev.Severity = eventlog.SeverityWarning
			if lvl == LevelCritical {
				ev.Severity = eventlog.SeverityCritical
			}
			ev.Threshold = &eventlog.ThresholdEvent{
				Threshold: lvl.String(),
				Value:     temp,
				Limit:     limit,
				FanSpeed:  d.Speed,
			}
		}
		c.cfg.Events.Log(ev)
		c.cfg.Logger.Warn("temperature threshold",
			slog.String("sensor", t.Name()),
			slog.String("level", lvl.String()),
			slog.Float64("temperature", temp))

		if lvl == LevelCritical && c.cfg.OnCritical != nil {
			c.cfg.OnCritical(t.Name(), temp, limit)
		}
	}
}

func (c *Controller) limitOf(t *inventory.Thermal, lvl Level) float64 {
	var v float64
	switch lvl {
	case LevelCritical:
		v, _ = t.HighCritical()
	case LevelHigh:
		v, _ = t.High()
	case LevelLow:
		v, _ = t.Low()
	}
	return v
}

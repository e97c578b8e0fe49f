package generic

import (
	"context"
	"fmt"
	"math"

	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/platform"
)

// DefaultSpeedTolerance is used for fans without a descriptor tolerance.
const DefaultSpeedTolerance = 20

type presenceFunc func(ctx context.Context) (bool, error)

func alwaysPresent(context.Context) (bool, error) { return true, nil }

type led struct {
	r   *Reader
	src *descriptor.Source
}

// newLED returns nil for a nil source so that callers see a nil LED.
func newLED(r *Reader, src *descriptor.Source) platform.LED {
	if src == nil {
		return nil
	}
	return &led{r: r, src: src}
}

func (l *led) Color(ctx context.Context) (platform.Color, error) {
	s, err := l.r.String(ctx, l.src)
	return platform.Color(s), err
}

func (l *led) SetColor(ctx context.Context, c platform.Color) error {
	if l.src.Map != nil {
		known := false
		for _, v := range l.src.Map {
			known = known || v == string(c)
		}
		if !known {
			return fmt.Errorf("%w: color %q", platform.ErrNotSupported, c)
		}
	}
	return l.r.WriteString(ctx, l.src, string(c))
}

type fan struct {
	r       *Reader
	spec    descriptor.FanSpec
	present presenceFunc
	led     platform.LED
}

func newFan(r *Reader, spec descriptor.FanSpec, parent presenceFunc) *fan {
	f := &fan{r: r, spec: spec, present: parent, led: newLED(r, spec.LED)}
	if spec.Presence != nil {
		f.present = func(ctx context.Context) (bool, error) { return r.Bool(ctx, spec.Presence) }
	}
	if f.present == nil {
		f.present = alwaysPresent
	}
	return f
}

func (f *fan) Name() string { return f.spec.Name }

func (f *fan) Presence(ctx context.Context) (bool, error) { return f.present(ctx) }

func (f *fan) Model(ctx context.Context) (string, error) { return f.r.String(ctx, f.spec.Model) }

func (f *fan) Serial(ctx context.Context) (string, error) { return f.r.String(ctx, f.spec.Serial) }

func (f *fan) Status(ctx context.Context) (platform.Status, error) {
	present, err := f.present(ctx)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if !present {
		return platform.StatusNotPresent, nil
	}
	if f.spec.Fault == nil {
		return platform.StatusOK, nil
	}
	fault, err := f.r.Bool(ctx, f.spec.Fault)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if fault {
		return platform.StatusNotOK, nil
	}
	return platform.StatusOK, nil
}

func (f *fan) Direction(ctx context.Context) (platform.FanDirection, error) {
	s, err := f.r.String(ctx, f.spec.Direction)
	if err != nil {
		return platform.FanDirectionUnknown, err
	}
	return platform.ParseFanDirection(s)
}

func (f *fan) SpeedPercent(ctx context.Context) (int, error) {
	v, err := f.r.Float(ctx, f.spec.Speed)
	if err != nil {
		return 0, err
	}
	if f.spec.MaxRPM > 0 {
		v = v * 100 / float64(f.spec.MaxRPM)
	}
	return clampPercent(v), nil
}

func (f *fan) TargetSpeedPercent(ctx context.Context) (int, error) {
	v, err := f.r.Float(ctx, f.spec.Target)
	if err != nil {
		return 0, err
	}
	if f.spec.PWMMax > 0 {
		v = v * 100 / float64(f.spec.PWMMax)
	}
	return clampPercent(v), nil
}

func (f *fan) SpeedTolerance(context.Context) (int, error) {
	if f.spec.Tolerance > 0 {
		return f.spec.Tolerance, nil
	}
	return DefaultSpeedTolerance, nil
}

func (f *fan) SetSpeedPercent(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: speed %d%%", platform.ErrInvalidArgument, percent)
	}
	v := percent
	if f.spec.PWMMax > 0 {
		v = int(math.Round(float64(percent) * float64(f.spec.PWMMax) / 100))
	}
	return f.r.WriteInt(ctx, f.spec.Target, v)
}

func (f *fan) LED() platform.LED { return f.led }

func clampPercent(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

type fanDrawer struct {
	r    *Reader
	spec descriptor.FanDrawerSpec
	fans []platform.Fan
	led  platform.LED
}

func newFanDrawer(r *Reader, spec descriptor.FanDrawerSpec) *fanDrawer {
	d := &fanDrawer{r: r, spec: spec, led: newLED(r, spec.LED)}
	for _, fs := range spec.Fans {
		d.fans = append(d.fans, newFan(r, fs, d.Presence))
	}
	return d
}

func (d *fanDrawer) Name() string { return d.spec.Name }

func (d *fanDrawer) Presence(ctx context.Context) (bool, error) {
	if d.spec.Presence == nil {
		return true, nil
	}
	return d.r.Bool(ctx, d.spec.Presence)
}

func (d *fanDrawer) Model(ctx context.Context) (string, error) { return d.r.String(ctx, d.spec.Model) }

func (d *fanDrawer) Serial(ctx context.Context) (string, error) {
	return d.r.String(ctx, d.spec.Serial)
}

// Status is NotOK when any fan in the drawer is.
func (d *fanDrawer) Status(ctx context.Context) (platform.Status, error) {
	present, err := d.Presence(ctx)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if !present {
		return platform.StatusNotPresent, nil
	}
	for _, f := range d.fans {
		st, err := f.Status(ctx)
		if err != nil {
			return platform.StatusUnknown, err
		}
		if st != platform.StatusOK {
			return platform.StatusNotOK, nil
		}
	}
	return platform.StatusOK, nil
}

func (d *fanDrawer) Fans() []platform.Fan { return d.fans }

func (d *fanDrawer) LED() platform.LED { return d.led }

type psu struct {
	r    *Reader
	spec descriptor.PSUSpec
	fans []platform.Fan
	led  platform.LED
}

func newPSU(r *Reader, spec descriptor.PSUSpec) *psu {
	p := &psu{r: r, spec: spec, led: newLED(r, spec.LED)}
	for _, fs := range spec.Fans {
		p.fans = append(p.fans, newFan(r, fs, p.Presence))
	}
	return p
}

func (p *psu) Name() string { return p.spec.Name }

func (p *psu) Presence(ctx context.Context) (bool, error) {
	if p.spec.Presence == nil {
		return true, nil
	}
	return p.r.Bool(ctx, p.spec.Presence)
}

func (p *psu) Model(ctx context.Context) (string, error)  { return p.r.String(ctx, p.spec.Model) }
func (p *psu) Serial(ctx context.Context) (string, error) { return p.r.String(ctx, p.spec.Serial) }

func (p *psu) Status(ctx context.Context) (platform.Status, error) {
	present, err := p.Presence(ctx)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if !present {
		return platform.StatusNotPresent, nil
	}
	if p.spec.PowerGood == nil {
		return platform.StatusOK, nil
	}
	good, err := p.PowerGood(ctx)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if !good {
		return platform.StatusNotOK, nil
	}
	return platform.StatusOK, nil
}

func (p *psu) Voltage(ctx context.Context) (float64, error) { return p.r.Float(ctx, p.spec.Voltage) }
func (p *psu) Current(ctx context.Context) (float64, error) { return p.r.Float(ctx, p.spec.Current) }
func (p *psu) Power(ctx context.Context) (float64, error)   { return p.r.Float(ctx, p.spec.Power) }

func (p *psu) Temperature(ctx context.Context) (float64, error) {
	return p.r.Float(ctx, p.spec.Temperature)
}

func (p *psu) PowerGood(ctx context.Context) (bool, error) { return p.r.Bool(ctx, p.spec.PowerGood) }

func (p *psu) Fans() []platform.Fan { return p.fans }

func (p *psu) LED() platform.LED { return p.led }

type thermal struct {
	r    *Reader
	spec descriptor.ThermalSpec
}

func (t *thermal) Name() string { return t.spec.Name }

func (t *thermal) Temperature(ctx context.Context) (float64, error) {
	return t.r.Float(ctx, t.spec.Temperature)
}

func (t *thermal) HighThreshold(ctx context.Context) (float64, error) {
	return t.r.Float(ctx, t.spec.High)
}

func (t *thermal) LowThreshold(ctx context.Context) (float64, error) {
	return t.r.Float(ctx, t.spec.Low)
}

func (t *thermal) HighCriticalThreshold(ctx context.Context) (float64, error) {
	return t.r.Float(ctx, t.spec.HighCritical)
}

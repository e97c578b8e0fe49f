package descriptor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/netplatform/pmon-go/pkg/sysfs"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid platform descriptor")

type validator struct {
	errs []string
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

func (v *validator) source(where string, s *Source, required bool) {
	if s == nil {
		if required {
			v.addf("%s: source required", where)
		}
		return
	}
	if err := s.Validate(); err != nil {
		v.addf("%s: %v", where, err)
	}
}

func (v *validator) names(kind string, seen map[string]bool, name string) {
	if name == "" {
		v.addf("%s: name required", kind)
		return
	}
	if seen[name] {
		v.addf("%s %q: duplicate name", kind, name)
	}
	seen[name] = true
}

func (v *validator) fan(where string, f *FanSpec) {
	v.source(where+".presence", f.Presence, false)
	v.source(where+".fault", f.Fault, false)
	v.source(where+".speed", f.Speed, false)
	v.source(where+".target", f.Target, false)
	v.source(where+".direction", f.Direction, false)
	v.source(where+".model", f.Model, false)
	v.source(where+".serial", f.Serial, false)
	v.source(where+".led", f.LED, false)
	if f.MaxRPM < 0 || f.PWMMax < 0 {
		v.addf("%s: maxRpm and pwmMax must not be negative", where)
	}
	if f.Tolerance < 0 || f.Tolerance > 100 {
		v.addf("%s: tolerance %d out of range", where, f.Tolerance)
	}
}

// Validate checks the descriptor for missing or inconsistent fields.
// Per-port templates are checked after expansion for every port.
func (d *Descriptor) Validate() error {
	v := &validator{}

	if d.Platform == "" {
		v.addf("platform name required")
	}
	v.source("chassis.statusLed", d.Chassis.StatusLED, false)
	v.source("chassis.rebootCause", d.Chassis.RebootCause, false)
	if d.SysEEPROM != nil && d.SysEEPROM.Path == "" {
		v.addf("syseeprom: path required")
	}
	if d.Watchdog != nil && d.Watchdog.Device == "" {
		v.addf("watchdog: device required")
	}

	fanNames := make(map[string]bool)
	for i := range d.Fans {
		v.names("fan", fanNames, d.Fans[i].Name)
		v.fan("fans["+d.Fans[i].Name+"]", &d.Fans[i])
	}
	drawerNames := make(map[string]bool)
	for i := range d.FanDrawers {
		dr := &d.FanDrawers[i]
		v.names("fan drawer", drawerNames, dr.Name)
		v.source("fanDrawers["+dr.Name+"].presence", dr.Presence, false)
		v.source("fanDrawers["+dr.Name+"].led", dr.LED, false)
		for j := range dr.Fans {
			v.names("fan", fanNames, dr.Fans[j].Name)
			v.fan("fanDrawers["+dr.Name+"].fans["+dr.Fans[j].Name+"]", &dr.Fans[j])
		}
	}

	psuNames := make(map[string]bool)
	for i := range d.PSUs {
		p := &d.PSUs[i]
		v.names("psu", psuNames, p.Name)
		where := "psus[" + p.Name + "]"
		v.source(where+".presence", p.Presence, false)
		v.source(where+".powerGood", p.PowerGood, false)
		v.source(where+".voltage", p.Voltage, false)
		v.source(where+".current", p.Current, false)
		v.source(where+".power", p.Power, false)
		v.source(where+".temperature", p.Temperature, false)
		for j := range p.Fans {
			v.names("fan", fanNames, p.Fans[j].Name)
			v.fan(where+".fans["+p.Fans[j].Name+"]", &p.Fans[j])
		}
	}

	thermalNames := make(map[string]bool)
	for i := range d.Thermals {
		th := &d.Thermals[i]
		v.names("thermal", thermalNames, th.Name)
		where := "thermals[" + th.Name + "]"
		v.source(where+".temperature", th.Temperature, true)
		v.source(where+".high", th.High, false)
		v.source(where+".low", th.Low, false)
		v.source(where+".highCritical", th.HighCritical, false)
	}

	compNames := make(map[string]bool)
	for i := range d.Components {
		c := &d.Components[i]
		v.names("component", compNames, c.Name)
		v.source("components["+c.Name+"].version", c.Version, true)
		if len(c.Install) > 0 && !strings.Contains(strings.Join(c.Install, " "), "{image}") {
			v.addf("components[%s].install: command must reference {image}", c.Name)
		}
	}

	if d.ThermalPolicy != nil {
		tp := d.ThermalPolicy
		if tp.DefaultSpeed < 0 || tp.DefaultSpeed > 100 || tp.MaxSpeed < 0 || tp.MaxSpeed > 100 {
			v.addf("thermalPolicy: speeds must be 0-100")
		}
	}

	if d.Ports != nil {
		d.Ports.validate(v)
	}

	if len(v.errs) > 0 {
		return fmt.Errorf("%w %s:\n  %s", ErrInvalid, d.Platform, strings.Join(v.errs, "\n  "))
	}
	return nil
}

func (p *PortSpec) validate(v *validator) {
	if p.Count <= 0 {
		v.addf("ports.count must be positive")
		return
	}
	for k, table := range p.Vars {
		if len(table) != p.Count {
			v.addf("ports.vars.%s: %d entries for %d ports", k, len(table), p.Count)
		}
	}
	for _, r := range p.Types {
		if r.From > r.To || !p.Contains(r.From) || !p.Contains(r.To) {
			v.addf("ports.types: range %d-%d outside ports", r.From, r.To)
		}
	}
	switch p.LPModeControl {
	case "", "pin", "eeprom":
	default:
		v.addf("ports.lpmodeControl: unknown mode %q", p.LPModeControl)
	}

	names := make(map[string]bool)
	for _, idx := range p.Indices() {
		name := p.PortName(idx)
		if names[name] {
			v.addf("ports: duplicate interface name %q", name)
		}
		names[name] = true

		for label, src := range map[string]*Source{"presence": p.Presence, "reset": p.Reset, "lpmode": p.LPMode} {
			if src == nil {
				continue
			}
			exp := p.SourceFor(src, idx)
			if left := unexpanded(exp); left != "" {
				v.addf("ports.%s: port %d: unresolved placeholder {%s}", label, idx, left)
				continue
			}
			v.source(fmt.Sprintf("ports.%s[%d]", label, idx), exp, false)
		}
		if p.EEPROM != "" {
			if left := sysfs.Placeholders(p.EEPROMPath(idx)); len(left) > 0 {
				v.addf("ports.eeprom: port %d: unresolved placeholder {%s}", idx, left[0])
			}
		}
	}

	for n, b := range p.PresenceBitmap {
		v.source(fmt.Sprintf("ports.presenceBitmap[%d]", n), b.Source, true)
		if b.Bits <= 0 || b.Bits > 64 {
			v.addf("ports.presenceBitmap[%d]: bits must be 1-64", n)
		}
		if !p.Contains(b.FirstPort) || !p.Contains(b.FirstPort+b.Bits-1) {
			v.addf("ports.presenceBitmap[%d]: ports %d-%d outside ports", n, b.FirstPort, b.FirstPort+b.Bits-1)
		}
	}
}

func unexpanded(s *Source) string {
	for _, v := range s.Params {
		if str, ok := v.(string); ok {
			if left := sysfs.Placeholders(str); len(left) > 0 {
				return left[0]
			}
		}
	}
	return ""
}

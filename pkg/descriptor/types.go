package descriptor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/netplatform/pmon-go/pkg/sysfs"
	"gopkg.in/yaml.v3"
)

// Descriptor is the data-driven description of one platform. A generic
// implementation of every platform interface is built from it.
type Descriptor struct {
	// Platform is the ONIE platform string, e.g. "x86_64-accton_as7712_32x-r0".
	Platform string `yaml:"platform"`

	// HwSKU is the default hardware SKU.
	HwSKU string `yaml:"hwsku,omitempty"`

	Chassis       ChassisSpec        `yaml:"chassis"`
	SysEEPROM     *EEPROMSpec        `yaml:"syseeprom,omitempty"`
	Watchdog      *WatchdogSpec      `yaml:"watchdog,omitempty"`
	Ports         *PortSpec          `yaml:"ports,omitempty"`
	FanDrawers    []FanDrawerSpec    `yaml:"fanDrawers,omitempty"`
	Fans          []FanSpec          `yaml:"fans,omitempty"`
	PSUs          []PSUSpec          `yaml:"psus,omitempty"`
	Thermals      []ThermalSpec      `yaml:"thermals,omitempty"`
	Components    []ComponentSpec    `yaml:"components,omitempty"`
	ThermalPolicy *ThermalPolicySpec `yaml:"thermalPolicy,omitempty"`
}

// ChassisSpec describes chassis level attributes.
type ChassisSpec struct {
	Name string `yaml:"name"`

	// StatusLED maps raw values to colors via Source.Map.
	StatusLED *Source `yaml:"statusLed,omitempty"`

	// RebootCause maps raw hardware values to reboot causes via Source.Map.
	RebootCause *Source `yaml:"rebootCause,omitempty"`
}

// EEPROMSpec locates the ONIE system EEPROM.
type EEPROMSpec struct {
	Path string `yaml:"path"`
}

// WatchdogSpec locates the watchdog character device.
type WatchdogSpec struct {
	Device string `yaml:"device"`
}

// FanSpec describes a fan.
type FanSpec struct {
	Name     string  `yaml:"name"`
	Presence *Source `yaml:"presence,omitempty"`

	// Fault reads true when the fan reports a failure.
	Fault *Source `yaml:"fault,omitempty"`

	// Speed reads the measured speed; RPM when MaxRPM is set, percent otherwise.
	Speed  *Source `yaml:"speed,omitempty"`
	MaxRPM int     `yaml:"maxRpm,omitempty"`

	// Target reads and writes the requested speed; a PWM duty cycle when
	// PWMMax is set, percent otherwise.
	Target *Source `yaml:"target,omitempty"`
	PWMMax int     `yaml:"pwmMax,omitempty"`

	Direction *Source `yaml:"direction,omitempty"`

	// Tolerance is the allowed deviation from target, in percent.
	Tolerance int `yaml:"tolerance,omitempty"`

	Model  *Source `yaml:"model,omitempty"`
	Serial *Source `yaml:"serial,omitempty"`
	LED    *Source `yaml:"led,omitempty"`
}

// FanDrawerSpec describes a fan tray holding one or more fans.
type FanDrawerSpec struct {
	Name     string    `yaml:"name"`
	Presence *Source   `yaml:"presence,omitempty"`
	Model    *Source   `yaml:"model,omitempty"`
	Serial   *Source   `yaml:"serial,omitempty"`
	LED      *Source   `yaml:"led,omitempty"`
	Fans     []FanSpec `yaml:"fans"`
}

// PSUSpec describes a power supply.
type PSUSpec struct {
	Name        string    `yaml:"name"`
	Presence    *Source   `yaml:"presence,omitempty"`
	PowerGood   *Source   `yaml:"powerGood,omitempty"`
	Model       *Source   `yaml:"model,omitempty"`
	Serial      *Source   `yaml:"serial,omitempty"`
	Voltage     *Source   `yaml:"voltage,omitempty"`
	Current     *Source   `yaml:"current,omitempty"`
	Power       *Source   `yaml:"power,omitempty"`
	Temperature *Source   `yaml:"temperature,omitempty"`
	LED         *Source   `yaml:"led,omitempty"`
	Fans        []FanSpec `yaml:"fans,omitempty"`
}

// ThermalSpec describes a temperature sensor. Thresholds may be plain
// numbers.
type ThermalSpec struct {
	Name         string  `yaml:"name"`
	Temperature  *Source `yaml:"temperature"`
	High         *Source `yaml:"high,omitempty"`
	Low          *Source `yaml:"low,omitempty"`
	HighCritical *Source `yaml:"highCritical,omitempty"`
}

// ComponentSpec describes a programmable component.
type ComponentSpec struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Version     *Source `yaml:"version"`

	// Install is the command line that programs an image; "{image}" is
	// replaced with the local image path.
	Install []string `yaml:"install,omitempty"`
}

// ThermalPolicySpec tunes the fan control policy.
type ThermalPolicySpec struct {
	DefaultSpeed int `yaml:"defaultSpeed,omitempty"`
	MaxSpeed     int `yaml:"maxSpeed,omitempty"`
}

// PortSpec describes the front panel transceiver cages. Per-port sources are
// templates: {index} is the port index, {lane} the first lane and any key of
// Vars is looked up per port.
type PortSpec struct {
	Count int `yaml:"count"`

	// First is the index of the first port.
	First int `yaml:"first,omitempty"`

	// Name is the interface name template, e.g. "Ethernet{lane}".
	Name       string `yaml:"name"`
	LaneStride int    `yaml:"laneStride,omitempty"`

	Types []PortTypeRange `yaml:"types,omitempty"`

	// Vars holds per-port lookup tables indexed from the first port.
	Vars map[string][]any `yaml:"vars,omitempty"`

	Presence *Source `yaml:"presence,omitempty"`
	Reset    *Source `yaml:"reset,omitempty"`
	LPMode   *Source `yaml:"lpmode,omitempty"`

	// LPModeControl is "pin" (default, uses LPMode) or "eeprom" for
	// software override through the module's power control byte.
	LPModeControl string `yaml:"lpmodeControl,omitempty"`

	// EEPROM is the path template of the module EEPROM attribute.
	EEPROM string `yaml:"eeprom,omitempty"`

	// ResetHold is how long reset is asserted. Defaults to one second.
	ResetHold time.Duration `yaml:"resetHold,omitempty"`

	// PresenceBitmap reads presence for many ports at once.
	PresenceBitmap []BitmapSpec `yaml:"presenceBitmap,omitempty"`
}

// PortTypeRange assigns a module type to ports From..To inclusive.
type PortTypeRange struct {
	From int    `yaml:"from"`
	To   int    `yaml:"to"`
	Type string `yaml:"type"`
}

// BitmapSpec is a register whose bits report presence of consecutive ports.
type BitmapSpec struct {
	Source    *Source `yaml:"source"`
	FirstPort int     `yaml:"firstPort"`
	Bits      int     `yaml:"bits"`
	ActiveLow bool    `yaml:"activeLow,omitempty"`
}

// DefaultResetHold is used when PortSpec.ResetHold is zero.
const DefaultResetHold = time.Second

// UnmarshalYAML accepts a scalar as shorthand for a constant source.
func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = Source{Kind: KindConst, Params: map[string]any{"value": v}}
		return nil
	}
	type plain Source
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Source(p)
	return nil
}

// Indices returns every port index.
func (p *PortSpec) Indices() []int {
	out := make([]int, p.Count)
	for n := range out {
		out[n] = p.First + n
	}
	return out
}

// Contains reports whether index is a valid port.
func (p *PortSpec) Contains(index int) bool {
	return index >= p.First && index < p.First+p.Count
}

// VarsFor returns the template variables of a port.
func (p *PortSpec) VarsFor(index int) map[string]any {
	n := index - p.First
	vars := map[string]any{
		"index": index,
		"lane":  n * p.laneStride(),
	}
	for k, table := range p.Vars {
		if n >= 0 && n < len(table) {
			vars[k] = table[n]
		}
	}
	return vars
}

func (p *PortSpec) laneStride() int {
	if p.LaneStride <= 0 {
		return 1
	}
	return p.LaneStride
}

// PortName returns the interface name of a port.
func (p *PortSpec) PortName(index int) string {
	if p.Name == "" {
		return "Ethernet" + strconv.Itoa(index)
	}
	return sysfs.Expand(p.Name, p.VarsFor(index))
}

// TypeOf returns the module type name of a port, "" when unspecified.
func (p *PortSpec) TypeOf(index int) string {
	for _, r := range p.Types {
		if index >= r.From && index <= r.To {
			return r.Type
		}
	}
	return ""
}

// SourceFor expands a per-port source template for index.
func (p *PortSpec) SourceFor(src *Source, index int) *Source {
	return src.Expand(p.VarsFor(index))
}

// EEPROMPath returns the EEPROM attribute path of a port.
func (p *PortSpec) EEPROMPath(index int) string {
	return sysfs.Expand(p.EEPROM, p.VarsFor(index))
}

// ResetHoldOrDefault returns ResetHold or DefaultResetHold.
func (p *PortSpec) ResetHoldOrDefault() time.Duration {
	if p.ResetHold <= 0 {
		return DefaultResetHold
	}
	return p.ResetHold
}

// String returns a one line summary of the descriptor.
func (d *Descriptor) String() string {
	ports := 0
	if d.Ports != nil {
		ports = d.Ports.Count
	}
	fans := len(d.Fans)
	for _, dr := range d.FanDrawers {
		fans += len(dr.Fans)
	}
	return fmt.Sprintf("%s: %d ports, %d fans, %d psus, %d thermals, %d components",
		d.Platform, ports, fans, len(d.PSUs), len(d.Thermals), len(d.Components))
}

package descriptor

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/netplatform/pmon-go/pkg/sysfs"
)

// Source kinds.
const (
	KindSysfs = "sysfs"
	KindI2C   = "i2c"
	KindIPMI  = "ipmi"
	KindCmd   = "cmd"
	KindConst = "const"
)

// Parse modes for raw values.
const (
	ParseString = "string"
	ParseInt    = "int"
	ParseFloat  = "float"
	ParseBool   = "bool"
	ParseHex    = "hex"
)

// Source describes where a single value is read from or written to.
// Kind-specific parameters are kept inline and decoded on demand:
//
//	temperature: {kind: sysfs, path: /sys/class/hwmon/hwmon1/temp1_input, parse: float, scale: 0.001}
//	present:     {kind: i2c, bus: 4, addr: 0x60, reg: 0x10, mask: 0x01, invert: true}
//	power:       {kind: ipmi, sensor: PSU1_POUT}
type Source struct {
	Kind string `yaml:"kind"`

	// Parse selects how the raw string is interpreted. Defaults to
	// "string" for sysfs/cmd and "int" for i2c.
	Parse string `yaml:"parse,omitempty"`

	// Scale multiplies numeric readings, e.g. 0.001 for millidegrees.
	Scale float64 `yaml:"scale,omitempty"`

	// Mask and Shift select bits of an integer reading before scaling.
	Mask  uint64 `yaml:"mask,omitempty"`
	Shift uint   `yaml:"shift,omitempty"`

	// Invert negates boolean readings (active-low signals).
	Invert bool `yaml:"invert,omitempty"`

	// Map translates raw strings into display values ("1" -> "green").
	// Writes use the inverse mapping.
	Map map[string]string `yaml:"map,omitempty"`

	Params map[string]any `yaml:",inline"`
}

// SysfsParams are the parameters of a sysfs source.
type SysfsParams struct {
	Path string `mapstructure:"path"`
}

// I2CParams are the parameters of an i2c register source.
type I2CParams struct {
	Bus  int   `mapstructure:"bus"`
	Addr uint8 `mapstructure:"addr"`
	Reg  uint8 `mapstructure:"reg"`
}

// IPMIParams are the parameters of an ipmitool sensor source.
type IPMIParams struct {
	Sensor string `mapstructure:"sensor"`

	// Raw, when set, issues "ipmitool raw" with these bytes and reads
	// the response byte at Index.
	Raw   []uint8 `mapstructure:"raw"`
	Index int     `mapstructure:"index"`
}

// CmdParams are the parameters of a command source.
type CmdParams struct {
	Args []string `mapstructure:"args"`
}

// ConstParams are the parameters of a constant source.
type ConstParams struct {
	Value any `mapstructure:"value"`
}

// DecodeParams decodes the inline parameters into out.
func (s *Source) DecodeParams(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.Params); err != nil {
		return fmt.Errorf("%s source: %w", s.Kind, err)
	}
	return nil
}

// Sysfs returns the sysfs parameters.
func (s *Source) Sysfs() (SysfsParams, error) {
	var p SysfsParams
	err := s.DecodeParams(&p)
	return p, err
}

// I2C returns the i2c parameters.
func (s *Source) I2C() (I2CParams, error) {
	var p I2CParams
	err := s.DecodeParams(&p)
	return p, err
}

// IPMI returns the ipmitool parameters.
func (s *Source) IPMI() (IPMIParams, error) {
	var p IPMIParams
	err := s.DecodeParams(&p)
	return p, err
}

// Cmd returns the command parameters.
func (s *Source) Cmd() (CmdParams, error) {
	var p CmdParams
	err := s.DecodeParams(&p)
	return p, err
}

// Const returns the constant parameters.
func (s *Source) Const() (ConstParams, error) {
	var p ConstParams
	err := s.DecodeParams(&p)
	return p, err
}

// ParseMode returns Parse or the default for the kind.
func (s *Source) ParseMode() string {
	if s.Parse != "" {
		return s.Parse
	}
	if s.Kind == KindI2C {
		return ParseInt
	}
	return ParseString
}

// Validate checks the kind and that the parameters decode.
func (s *Source) Validate() error {
	var err error
	switch s.Kind {
	case KindSysfs:
		var p SysfsParams
		if p, err = s.Sysfs(); err == nil && p.Path == "" {
			err = fmt.Errorf("sysfs source requires path")
		}
	case KindI2C:
		_, err = s.I2C()
	case KindIPMI:
		var p IPMIParams
		if p, err = s.IPMI(); err == nil && p.Sensor == "" && len(p.Raw) < 2 {
			err = fmt.Errorf("ipmi source requires sensor or raw")
		}
	case KindCmd:
		var p CmdParams
		if p, err = s.Cmd(); err == nil && len(p.Args) == 0 {
			err = fmt.Errorf("cmd source requires args")
		}
	case KindConst:
		_, err = s.Const()
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
	if err != nil {
		return err
	}
	switch s.ParseMode() {
	case ParseString, ParseInt, ParseFloat, ParseBool, ParseHex:
	default:
		return fmt.Errorf("unknown parse mode %q", s.Parse)
	}
	return nil
}

// Expand returns a copy of s with {name} placeholders in string parameters
// replaced using vars.
func (s *Source) Expand(vars map[string]any) *Source {
	if s == nil {
		return nil
	}
	out := *s
	out.Params = make(map[string]any, len(s.Params))
	for k, v := range s.Params {
		switch x := v.(type) {
		case string:
			out.Params[k] = sysfs.Expand(x, vars)
		case []any:
			items := make([]any, len(x))
			for n, item := range x {
				if str, ok := item.(string); ok {
					items[n] = sysfs.Expand(str, vars)
				} else {
					items[n] = item
				}
			}
			out.Params[k] = items
		default:
			out.Params[k] = v
		}
	}
	return &out
}

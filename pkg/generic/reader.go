package generic

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/hwexec"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sysfs"
)

// Reader reads and writes descriptor sources. Values are read on every call.
type Reader struct {
	FS     *sysfs.FS
	Runner hwexec.Runner
}

func (r *Reader) i2c() hwexec.I2C   { return hwexec.I2C{Runner: r.Runner} }
func (r *Reader) ipmi() hwexec.IPMI { return hwexec.IPMI{Runner: r.Runner} }

// Raw returns the unprocessed value of src as a string.
func (r *Reader) Raw(ctx context.Context, src *descriptor.Source) (string, error) {
	if src == nil {
		return "", platform.ErrNotSupported
	}
	switch src.Kind {
	case descriptor.KindSysfs:
		p, err := src.Sysfs()
		if err != nil {
			return "", err
		}
		return r.FS.ReadString(p.Path)

	case descriptor.KindI2C:
		p, err := src.I2C()
		if err != nil {
			return "", err
		}
		v, err := r.i2c().Get(ctx, p.Bus, p.Addr, p.Reg)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(v)), nil

	case descriptor.KindIPMI:
		p, err := src.IPMI()
		if err != nil {
			return "", err
		}
		if len(p.Raw) >= 2 {
			resp, err := r.ipmi().Raw(ctx, p.Raw[0], p.Raw[1], p.Raw[2:]...)
			if err != nil {
				return "", err
			}
			if p.Index >= len(resp) {
				return "", fmt.Errorf("ipmi raw response has %d bytes, want index %d", len(resp), p.Index)
			}
			return strconv.Itoa(int(resp[p.Index])), nil
		}
		s, err := r.ipmi().Sensor(ctx, p.Sensor)
		if err != nil {
			return "", err
		}
		if s.Status == "ns" {
			return "", fmt.Errorf("sensor %s: %w", p.Sensor, platform.ErrNotPresent)
		}
		if s.HasValue {
			return strconv.FormatFloat(s.Value, 'f', -1, 64), nil
		}
		return s.Text, nil

	case descriptor.KindCmd:
		p, err := src.Cmd()
		if err != nil {
			return "", err
		}
		out, err := r.Runner.Run(ctx, p.Args[0], p.Args[1:]...)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil

	case descriptor.KindConst:
		p, err := src.Const()
		if err != nil {
			return "", err
		}
		return fmt.Sprint(p.Value), nil
	}
	return "", fmt.Errorf("unknown source kind %q", src.Kind)
}

// String reads src and applies its value map.
func (r *Reader) String(ctx context.Context, src *descriptor.Source) (string, error) {
	raw, err := r.Raw(ctx, src)
	if err != nil {
		return "", err
	}
	if src.Map != nil {
		if v, ok := src.Map[raw]; ok {
			return v, nil
		}
		if v, ok := src.Map["default"]; ok {
			return v, nil
		}
	}
	return raw, nil
}

// Uint reads an integer, applying mask and shift.
func (r *Reader) Uint(ctx context.Context, src *descriptor.Source) (uint64, error) {
	raw, err := r.Raw(ctx, src)
	if err != nil {
		return 0, err
	}
	return parseUint(src, raw)
}

func parseUint(src *descriptor.Source, raw string) (uint64, error) {
	var v uint64
	var err error
	switch src.ParseMode() {
	case descriptor.ParseHex:
		v, err = strconv.ParseUint(strings.TrimPrefix(strings.ToLower(raw), "0x"), 16, 64)
	case descriptor.ParseFloat:
		var f float64
		f, err = strconv.ParseFloat(raw, 64)
		v = uint64(f)
	default:
		var i int64
		i, err = strconv.ParseInt(raw, 0, 64)
		v = uint64(i)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", sysfs.ErrParse, raw)
	}
	if src.Mask != 0 {
		v &= src.Mask
	}
	return v >> src.Shift, nil
}

// Float reads a number and applies mask, shift and scale.
func (r *Reader) Float(ctx context.Context, src *descriptor.Source) (float64, error) {
	raw, err := r.Raw(ctx, src)
	if err != nil {
		return 0, err
	}
	var f float64
	if src.Mask != 0 || src.Shift != 0 || src.ParseMode() == descriptor.ParseHex {
		v, err := parseUint(src, raw)
		if err != nil {
			return 0, err
		}
		f = float64(v)
	} else {
		f, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", sysfs.ErrParse, raw)
		}
	}
	if src.Scale != 0 {
		f *= src.Scale
	}
	return f, nil
}

// Int reads a number and rounds it to the nearest integer.
func (r *Reader) Int(ctx context.Context, src *descriptor.Source) (int, error) {
	f, err := r.Float(ctx, src)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// Bool reads a boolean. Integer sources are true when any selected bit is
// set; string sources accept the sysfs boolean forms. Invert is applied last.
func (r *Reader) Bool(ctx context.Context, src *descriptor.Source) (bool, error) {
	raw, err := r.Raw(ctx, src)
	if err != nil {
		return false, err
	}
	var v bool
	switch src.ParseMode() {
	case descriptor.ParseInt, descriptor.ParseHex:
		n, err := parseUint(src, raw)
		if err != nil {
			return false, err
		}
		v = n != 0
	default:
		if src.Mask != 0 {
			n, err := parseUint(src, raw)
			if err != nil {
				return false, err
			}
			v = n != 0
			break
		}
		var ok bool
		if v, ok = sysfs.ParseBool(raw); !ok {
			return false, fmt.Errorf("%w: %q", sysfs.ErrParse, raw)
		}
	}
	return v != src.Invert, nil
}

// WriteString writes value, translated through the inverse value map.
func (r *Reader) WriteString(ctx context.Context, src *descriptor.Source, value string) error {
	if src == nil {
		return platform.ErrNotSupported
	}
	for raw, mapped := range src.Map {
		if mapped == value && raw != "default" {
			value = raw
			break
		}
	}
	switch src.Kind {
	case descriptor.KindSysfs:
		p, err := src.Sysfs()
		if err != nil {
			return err
		}
		return r.FS.WriteString(p.Path, value)

	case descriptor.KindI2C:
		p, err := src.I2C()
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("%w: %q is not a register value", platform.ErrInvalidArgument, value)
		}
		if src.Mask != 0 {
			return r.i2c().Update(ctx, p.Bus, p.Addr, p.Reg, uint8(src.Mask), uint8(n<<src.Shift))
		}
		return r.i2c().Set(ctx, p.Bus, p.Addr, p.Reg, uint8(n))

	case descriptor.KindCmd:
		p, err := src.Cmd()
		if err != nil {
			return err
		}
		args := make([]string, len(p.Args))
		for n, a := range p.Args {
			args[n] = sysfs.Expand(a, map[string]any{"value": value})
		}
		_, err = r.Runner.Run(ctx, args[0], args[1:]...)
		return err
	}
	return fmt.Errorf("%s source is read-only: %w", src.Kind, platform.ErrNotSupported)
}

// WriteInt writes an integer value. Scale is divided out.
func (r *Reader) WriteInt(ctx context.Context, src *descriptor.Source, v int) error {
	if src != nil && src.Scale != 0 {
		v = int(math.Round(float64(v) / src.Scale))
	}
	return r.WriteString(ctx, src, strconv.Itoa(v))
}

// WriteBool writes a boolean, honoring Invert. Masked i2c sources set or
// clear the selected bits.
func (r *Reader) WriteBool(ctx context.Context, src *descriptor.Source, v bool) error {
	if src == nil {
		return platform.ErrNotSupported
	}
	v = v != src.Invert
	if src.Kind == descriptor.KindI2C && src.Mask != 0 {
		p, err := src.I2C()
		if err != nil {
			return err
		}
		var val uint8
		if v {
			val = uint8(src.Mask)
		}
		return r.i2c().Update(ctx, p.Bus, p.Addr, p.Reg, uint8(src.Mask), val)
	}
	if v {
		return r.WriteString(ctx, src, "1")
	}
	return r.WriteString(ctx, src, "0")
}

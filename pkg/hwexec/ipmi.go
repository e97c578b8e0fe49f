package hwexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSensorNotFound is returned when ipmitool has no sensor with the given name.
var ErrSensorNotFound = errors.New("sensor not found")

// SensorReading is one row of "ipmitool sdr" output.
type SensorReading struct {
	Name   string
	ID     string
	Status string // ok, ns, cr, nr, ...
	Entity string

	// Value is set when the reading is numeric.
	Value    float64
	HasValue bool
	Unit     string

	// Text holds non-numeric readings such as "Presence detected".
	Text string
}

// OK reports whether the BMC considers the sensor healthy.
func (s SensorReading) OK() bool {
	return s.Status == "ok"
}

// IPMI queries BMC sensors through ipmitool.
type IPMI struct {
	Runner Runner
}

// Sensors returns all sensors of an SDR type such as "Fan", "Temperature"
// or "Power Supply".
func (i IPMI) Sensors(ctx context.Context, sdrType string) ([]SensorReading, error) {
	out, err := i.Runner.Run(ctx, "ipmitool", "sdr", "type", sdrType)
	if err != nil {
		return nil, err
	}
	return ParseSDR(out)
}

// Sensor returns the named sensor reading.
func (i IPMI) Sensor(ctx context.Context, name string) (SensorReading, error) {
	out, err := i.Runner.Run(ctx, "ipmitool", "sdr", "get", name)
	if err != nil {
		return SensorReading{}, err
	}
	return parseSDRGet(name, out)
}

// Raw sends a raw IPMI request and returns the response bytes.
func (i IPMI) Raw(ctx context.Context, netfn, cmd uint8, data ...uint8) ([]byte, error) {
	args := []string{"raw", hexByte(netfn), hexByte(cmd)}
	for _, b := range data {
		args = append(args, hexByte(b))
	}
	out, err := i.Runner.Run(ctx, "ipmitool", args...)
	if err != nil {
		return nil, err
	}
	return ParseRawResponse(string(out))
}

// ParseSDR parses "ipmitool sdr type" / "sdr elist" output.
func ParseSDR(out []byte) ([]SensorReading, error) {
	var readings []SensorReading
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) != 5 {
			return nil, fmt.Errorf("unexpected sdr line %q", line)
		}
		for n := range cols {
			cols[n] = strings.TrimSpace(cols[n])
		}
		r := SensorReading{
			Name:   cols[0],
			ID:     cols[1],
			Status: cols[2],
			Entity: cols[3],
		}
		r.Value, r.Unit, r.HasValue = parseReading(cols[4])
		if !r.HasValue {
			r.Text = cols[4]
		}
		readings = append(readings, r)
	}
	return readings, sc.Err()
}

func parseSDRGet(name string, out []byte) (SensorReading, error) {
	r := SensorReading{Name: name}
	found := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "Sensor ID":
			found = true
		case "Sensor Reading":
			// "12000 (+/- 0) RPM"
			fields := strings.Fields(val)
			if len(fields) > 0 {
				if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
					r.Value, r.HasValue = v, true
					r.Unit = fields[len(fields)-1]
				} else {
					r.Text = val
				}
			}
		case "Status":
			r.Status = strings.ToLower(val)
		case "Entity ID":
			r.Entity = val
		}
	}
	if !found {
		return SensorReading{}, fmt.Errorf("%w: %s", ErrSensorNotFound, name)
	}
	if r.Status == "" {
		r.Status = "ok"
	}
	return r, sc.Err()
}

// parseReading splits "12000 RPM" / "35 degrees C" into a value and a unit.
func parseReading(s string) (float64, string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.Join(fields[1:], " "), true
}

// ParseRawResponse parses the space separated hex bytes printed by
// "ipmitool raw".
func ParseRawResponse(s string) ([]byte, error) {
	var out []byte
	for _, f := range strings.Fields(s) {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("unexpected raw response %q: %w", s, err)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

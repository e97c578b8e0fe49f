package hwexec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// I2C reads and writes single-byte registers with i2c-tools.
type I2C struct {
	Runner Runner
}

// Get reads register reg of the device at addr on bus.
func (i I2C) Get(ctx context.Context, bus int, addr, reg uint8) (uint8, error) {
	out, err := i.Runner.Run(ctx, "i2cget", "-f", "-y",
		strconv.Itoa(bus), hexByte(addr), hexByte(reg))
	if err != nil {
		return 0, err
	}
	return ParseHexByte(string(out))
}

// Set writes val to register reg of the device at addr on bus.
func (i I2C) Set(ctx context.Context, bus int, addr, reg, val uint8) error {
	_, err := i.Runner.Run(ctx, "i2cset", "-f", "-y",
		strconv.Itoa(bus), hexByte(addr), hexByte(reg), hexByte(val))
	return err
}

// Update performs a read-modify-write of the bits selected by mask.
func (i I2C) Update(ctx context.Context, bus int, addr, reg, mask, val uint8) error {
	cur, err := i.Get(ctx, bus, addr, reg)
	if err != nil {
		return err
	}
	return i.Set(ctx, bus, addr, reg, cur&^mask|val&mask)
}

// ParseHexByte parses i2cget output such as "0x1f\n".
func ParseHexByte(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("unexpected i2cget output %q: %w", s, err)
	}
	return uint8(v), nil
}

func hexByte(v uint8) string {
	return fmt.Sprintf("0x%02x", v)
}

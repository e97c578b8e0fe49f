package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sff"
)

// pageSize is the size of an SFF-8472 device address (A0h/A2h).
const pageSize = 256

type transceiver struct {
	r      *Reader
	index  int
	name   string
	ports  *descriptor.PortSpec
	reset  *descriptor.Source
	lpmode *descriptor.Source
	eeprom string
	hold   time.Duration

	presence *descriptor.Source

	// fromBitmap reads presence from the chassis presence registers when
	// there is no per-port source.
	fromBitmap func(ctx context.Context, port int) (bool, error)
}

func newTransceiver(r *Reader, ports *descriptor.PortSpec, index int) *transceiver {
	t := &transceiver{
		r:     r,
		index: index,
		name:  ports.PortName(index),
		ports: ports,
		hold:  ports.ResetHoldOrDefault(),
	}
	if ports.Presence != nil {
		t.presence = ports.SourceFor(ports.Presence, index)
	}
	if ports.Reset != nil {
		t.reset = ports.SourceFor(ports.Reset, index)
	}
	if ports.LPMode != nil {
		t.lpmode = ports.SourceFor(ports.LPMode, index)
	}
	if ports.EEPROM != "" {
		t.eeprom = ports.EEPROMPath(index)
	}
	return t
}

func (t *transceiver) Name() string { return t.name }
func (t *transceiver) Port() int    { return t.index }

func (t *transceiver) Presence(ctx context.Context) (bool, error) {
	switch {
	case t.presence != nil:
		return t.r.Bool(ctx, t.presence)
	case t.fromBitmap != nil:
		return t.fromBitmap(ctx, t.index)
	case t.eeprom != "":
		// A readable identifier byte means a module is plugged.
		_, err := t.r.FS.ReadBytes(t.eeprom, 0, 1)
		return err == nil, nil
	}
	return false, platform.ErrNotSupported
}

func (t *transceiver) Model(ctx context.Context) (string, error) {
	info, err := t.Info(ctx)
	if err != nil {
		return "", err
	}
	return info.VendorPN, nil
}

func (t *transceiver) Serial(ctx context.Context) (string, error) {
	info, err := t.Info(ctx)
	if err != nil {
		return "", err
	}
	return info.VendorSN, nil
}

// Status is NotOK when a present module's EEPROM cannot be parsed.
func (t *transceiver) Status(ctx context.Context) (platform.Status, error) {
	present, err := t.Presence(ctx)
	if err != nil {
		return platform.StatusUnknown, err
	}
	if !present {
		return platform.StatusNotPresent, nil
	}
	if t.eeprom == "" {
		return platform.StatusOK, nil
	}
	if _, err := t.Info(ctx); err != nil {
		return platform.StatusNotOK, nil
	}
	return platform.StatusOK, nil
}

// Reset asserts reset for the hold time and releases it. The source's
// invert flag handles active-low reset lines.
func (t *transceiver) Reset(ctx context.Context) error {
	if t.reset == nil {
		return fmt.Errorf("%s reset: %w", t.name, platform.ErrNotSupported)
	}
	if err := t.r.WriteBool(ctx, t.reset, true); err != nil {
		return fmt.Errorf("%s reset: %w", t.name, err)
	}
	timer := time.NewTimer(t.hold)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	// Always release, even when ctx is done.
	if err := t.r.WriteBool(context.WithoutCancel(ctx), t.reset, false); err != nil {
		return fmt.Errorf("%s reset release: %w", t.name, err)
	}
	return ctx.Err()
}

func (t *transceiver) eepromControl() bool {
	return t.ports.LPModeControl == "eeprom"
}

func (t *transceiver) LowPowerMode(ctx context.Context) (bool, error) {
	if !t.eepromControl() {
		if t.lpmode == nil {
			return false, platform.ErrNotSupported
		}
		return t.r.Bool(ctx, t.lpmode)
	}
	if err := t.requireFamily(ctx, sff.FamilySFF8636); err != nil {
		return false, err
	}
	b, err := t.ReadEEPROM(ctx, 0, sff.PowerControlOffset, 1)
	if err != nil {
		return false, err
	}
	return sff.LowPowerFromControl(b[0]), nil
}

func (t *transceiver) SetLowPowerMode(ctx context.Context, on bool) error {
	if !t.eepromControl() {
		if t.lpmode == nil {
			return fmt.Errorf("%s lpmode: %w", t.name, platform.ErrNotSupported)
		}
		return t.r.WriteBool(ctx, t.lpmode, on)
	}
	if err := t.requireFamily(ctx, sff.FamilySFF8636); err != nil {
		return err
	}
	return t.r.FS.WriteBytes(t.eeprom, sff.PowerControlOffset, []byte{sff.PowerControlByte(on)})
}

func (t *transceiver) identifier(ctx context.Context) (sff.Identifier, error) {
	if t.eeprom == "" {
		return 0, platform.ErrNotSupported
	}
	present, err := t.Presence(ctx)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, fmt.Errorf("%s: %w", t.name, platform.ErrNotPresent)
	}
	b, err := t.r.FS.ReadBytes(t.eeprom, 0, 1)
	if err != nil {
		return 0, err
	}
	return sff.Identifier(b[0]), nil
}

func (t *transceiver) requireFamily(ctx context.Context, fam sff.Family) error {
	id, err := t.identifier(ctx)
	if err != nil {
		return err
	}
	if id.Family() != fam {
		return fmt.Errorf("%s: %s modules: %w", t.name, id, platform.ErrNotSupported)
	}
	return nil
}

// ReadEEPROM maps (page, off) to an offset in the optoe-style EEPROM file.
// SFP modules expose A0h then A2h as consecutive 256 byte pages; paged
// modules expose the lower page once followed by 128 byte upper pages.
func (t *transceiver) ReadEEPROM(ctx context.Context, page, off, n int) ([]byte, error) {
	if page < 0 || off < 0 || n <= 0 || off+n > pageSize {
		return nil, fmt.Errorf("%w: page %d offset %d length %d", platform.ErrInvalidArgument, page, off, n)
	}
	id, err := t.identifier(ctx)
	if err != nil {
		return nil, err
	}
	var pos int
	switch {
	case id.Family() == sff.FamilySFF8472:
		pos = page*pageSize + off
	case off < 128:
		pos = off
	default:
		pos = page*128 + off
	}
	return t.r.FS.ReadBytes(t.eeprom, int64(pos), n)
}

func (t *transceiver) Info(ctx context.Context) (*sff.Info, error) {
	data, err := t.ReadEEPROM(ctx, 0, 0, pageSize)
	if err != nil {
		return nil, err
	}
	return sff.ParseInfo(data)
}

func (t *transceiver) DOM(ctx context.Context) (*sff.DOM, error) {
	id, err := t.identifier(ctx)
	if err != nil {
		return nil, err
	}
	page := 0
	if id.Family() == sff.FamilySFF8472 {
		page = 1
	}
	data, err := t.ReadEEPROM(ctx, page, 0, 128)
	if err != nil {
		return nil, err
	}
	return sff.ParseDOM(id, data)
}

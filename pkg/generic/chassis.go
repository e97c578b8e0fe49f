package generic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/hwexec"
	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sysfs"
	"github.com/netplatform/pmon-go/pkg/watchdog"
	"github.com/netplatform/pmon-go/pkg/xcvr"
)

// Options configures a Chassis.
type Options struct {
	// FS is the sysfs root. Defaults to sysfs.Default().
	FS *sysfs.FS

	// Runner runs i2c-tools, ipmitool and install commands.
	// Defaults to hwexec.NewExecRunner().
	Runner hwexec.Runner

	// Images resolves firmware images. Nil installs local paths only.
	Images ImageResolver

	// Watchdog overrides the watchdog built from the descriptor.
	Watchdog platform.Watchdog

	// PollInterval and Debounce tune transceiver change detection.
	PollInterval time.Duration
	Debounce     int
	// ReportErrors reports presence read failures as error events.
	ReportErrors bool

	Logger *slog.Logger
}

// Chassis implements platform.Chassis from a descriptor.
type Chassis struct {
	desc   *descriptor.Descriptor
	r      *Reader
	logger *slog.Logger

	fans       []platform.Fan
	drawers    []platform.FanDrawer
	psus       []platform.PSU
	thermals   []platform.Thermal
	xcvrs      []platform.Transceiver
	components []platform.Component
	statusLED  platform.LED
	watchdog   platform.Watchdog

	poller *xcvr.Poller
}

var _ platform.Chassis = (*Chassis)(nil)

// NewChassis builds the platform described by desc.
func NewChassis(desc *descriptor.Descriptor, opts Options) (*Chassis, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = sysfs.Default()
	}
	if opts.Runner == nil {
		opts.Runner = hwexec.NewExecRunner()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Reader{FS: opts.FS, Runner: opts.Runner}
	c := &Chassis{
		desc:      desc,
		r:         r,
		logger:    opts.Logger,
		statusLED: newLED(r, desc.Chassis.StatusLED),
		watchdog:  opts.Watchdog,
	}

	for _, fs := range desc.Fans {
		c.fans = append(c.fans, newFan(r, fs, nil))
	}
	for _, ds := range desc.FanDrawers {
		d := newFanDrawer(r, ds)
		c.drawers = append(c.drawers, d)
		c.fans = append(c.fans, d.Fans()...)
	}
	for _, ps := range desc.PSUs {
		c.psus = append(c.psus, newPSU(r, ps))
	}
	for _, ts := range desc.Thermals {
		c.thermals = append(c.thermals, &thermal{r: r, spec: ts})
	}
	for _, cs := range desc.Components {
		c.components = append(c.components, &component{r: r, spec: cs, images: opts.Images, logger: opts.Logger})
	}
	if c.watchdog == nil && desc.Watchdog != nil {
		wd := watchdog.New(desc.Watchdog.Device)
		wd.SetLogger(opts.Logger)
		c.watchdog = wd
	}

	var src xcvr.PresenceSource
	if ports := desc.Ports; ports != nil {
		regs := c.presenceRegisters()
		for _, idx := range ports.Indices() {
			t := newTransceiver(r, ports, idx)
			if t.presence == nil && len(regs) > 0 {
				t.fromBitmap = func(ctx context.Context, port int) (bool, error) {
					b, err := regs.Presence(ctx)
					var rerr *xcvr.ReadError
					if errors.As(err, &rerr) {
						for _, p := range rerr.Ports {
							if p == port {
								return false, err
							}
						}
					} else if err != nil {
						return false, err
					}
					return b.Test(port), nil
				}
			}
			c.xcvrs = append(c.xcvrs, t)
		}
		if len(regs) > 0 {
			src = regs
		} else {
			src = xcvr.Transceivers(c.xcvrs)
		}
	}
	if src != nil {
		c.poller = &xcvr.Poller{
			Source:       src,
			Interval:     opts.PollInterval,
			Debounce:     opts.Debounce,
			ReportErrors: opts.ReportErrors,
			Logger:       opts.Logger,
		}
	}
	return c, nil
}

func (c *Chassis) presenceRegisters() xcvr.Registers {
	var regs xcvr.Registers
	for _, b := range c.desc.Ports.PresenceBitmap {
		src := b.Source
		regs = append(regs, xcvr.Register{
			Read:      func(ctx context.Context) (uint64, error) { return c.r.Uint(ctx, src) },
			FirstPort: b.FirstPort,
			Bits:      b.Bits,
			ActiveLow: b.ActiveLow,
		})
	}
	return regs
}

// Descriptor returns the descriptor the chassis was built from.
func (c *Chassis) Descriptor() *descriptor.Descriptor { return c.desc }

func (c *Chassis) Name() string {
	if c.desc.Chassis.Name != "" {
		return c.desc.Chassis.Name
	}
	return c.desc.Platform
}

// SysEEPROM decodes the ONIE system EEPROM. A CRC mismatch is logged and the
// decoded fields are still returned.
func (c *Chassis) SysEEPROM(ctx context.Context) (*onie.Info, error) {
	if c.desc.SysEEPROM == nil {
		return nil, platform.ErrNotSupported
	}
	f, err := os.Open(c.r.FS.Path(c.desc.SysEEPROM.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", c.desc.SysEEPROM.Path, sysfs.ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	info, err := onie.ReadFrom(f)
	if errors.Is(err, onie.ErrBadCRC) && info != nil {
		c.logger.Warn("system eeprom CRC mismatch", "path", c.desc.SysEEPROM.Path)
		return info, nil
	}
	return info, err
}

func (c *Chassis) Fans() []platform.Fan                 { return c.fans }
func (c *Chassis) FanDrawers() []platform.FanDrawer     { return c.drawers }
func (c *Chassis) PSUs() []platform.PSU                 { return c.psus }
func (c *Chassis) Thermals() []platform.Thermal         { return c.thermals }
func (c *Chassis) Transceivers() []platform.Transceiver { return c.xcvrs }
func (c *Chassis) Components() []platform.Component     { return c.components }
func (c *Chassis) StatusLED() platform.LED              { return c.statusLED }
func (c *Chassis) Watchdog() platform.Watchdog          { return c.watchdog }

// Transceiver returns the transceiver at port.
func (c *Chassis) Transceiver(port int) (platform.Transceiver, error) {
	for _, t := range c.xcvrs {
		if t.Port() == port {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no port %d", platform.ErrInvalidArgument, port)
}

// RebootCause reads the hardware reboot cause register. Unmapped values are
// reported as a hardware cause with the raw value as detail.
func (c *Chassis) RebootCause(ctx context.Context) (platform.RebootCause, error) {
	src := c.desc.Chassis.RebootCause
	if src == nil {
		return platform.RebootCause{}, platform.ErrNotSupported
	}
	raw, err := c.r.Raw(ctx, src)
	if err != nil {
		return platform.RebootCause{}, err
	}
	if cause, ok := src.Map[raw]; ok {
		return platform.RebootCause{Cause: cause}, nil
	}
	return platform.RebootCause{Cause: platform.CauseHardwareOther, Detail: "register value " + raw}, nil
}

// Poller returns the transceiver change poller, nil without ports.
func (c *Chassis) Poller() *xcvr.Poller { return c.poller }

func (c *Chassis) ChangeEvents(ctx context.Context, timeout time.Duration) (platform.ChangeSet, error) {
	if c.poller == nil {
		return nil, platform.ErrNotSupported
	}
	return c.poller.WaitChange(ctx, timeout)
}

// Package rebootcause determines why the switch last rebooted.
//
// The hardware cause comes from the platform (CPLD register, BMC). The
// software cause is the line the reboot scripts leave in the cause file,
// e.g.
//
//	User issued 'reboot' command [User: admin, Time: Tue 03 Mar 2026 10:01:02 AM UTC]
//
// A hardware cause other than "Non-Hardware" wins; otherwise the software
// cause is used; otherwise the cause is "Unknown". Once consumed the cause
// file is rewritten to "Unknown" so that a later unexpected reboot is not
// attributed to the same command.
package rebootcause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/shirou/gopsutil/host"
)

// DefaultCauseFile is where the reboot scripts record the software cause.
const DefaultCauseFile = "/host/reboot-cause/reboot-cause.txt"

// Result is the determined cause of the last reboot.
type Result struct {
	platform.RebootCause

	// Hardware is set when the cause was reported by hardware.
	Hardware bool `json:"hardware"`

	// BootTime is when the system booted.
	BootTime time.Time `json:"boot_time"`

	// Recorded is false when the cause had already been determined for this
	// boot, e.g. after a daemon restart.
	Recorded bool `json:"-"`
}

// HardwareSource reports the hardware reboot cause.
type HardwareSource interface {
	RebootCause(ctx context.Context) (platform.RebootCause, error)
}

// Determiner determines and records reboot causes.
type Determiner struct {
	// Hardware is usually the platform.Chassis. Nil means no hardware cause.
	Hardware HardwareSource

	// CauseFile defaults to DefaultCauseFile.
	CauseFile string

	// Store receives the history; nil disables recording.
	Store    *persistence.StateStore
	Platform string
	Limit    int

	// BootTime defaults to the host boot time.
	BootTime func() (time.Time, error)

	Logger *slog.Logger
}

// HostBootTime returns the boot time of the host.
func HostBootTime() (time.Time, error) {
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

// Determine returns the cause of the last reboot. On the first call after a
// boot the cause is appended to the history and the cause file is reset;
// later calls within the same boot return the recorded cause.
func (d *Determiner) Determine(ctx context.Context) (*Result, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bootTimeFn := d.BootTime
	if bootTimeFn == nil {
		bootTimeFn = HostBootTime
	}
	boot, err := bootTimeFn()
	if err != nil {
		logger.Warn("rebootcause: boot time unavailable", "error", err)
	}

	var state *persistence.PlatformState
	if d.Store != nil {
		state, err = d.Store.LoadFor(d.Platform)
		if err != nil {
			logger.Warn("rebootcause: state unreadable, starting a new history", "error", err)
		}
		if last, ok := state.LastRebootCause(); ok && !boot.IsZero() && last.BootTime.Equal(boot) {
			return &Result{
				RebootCause: platform.RebootCause{Cause: last.Cause, Detail: last.Detail, Time: last.Time},
				Hardware:    last.Hardware,
				BootTime:    last.BootTime,
			}, nil
		}
	}

	res := &Result{BootTime: boot}
	hw, hwErr := d.hardware(ctx)
	if hwErr != nil && !errors.Is(hwErr, platform.ErrNotSupported) {
		logger.Warn("rebootcause: hardware cause unavailable", "error", hwErr)
	}
	sw, swErr := d.software()
	if swErr != nil {
		logger.Warn("rebootcause: software cause unavailable", "file", d.causeFile(), "error", swErr)
	}

	switch {
	case hwErr == nil && hw.Cause != "" && hw.Cause != platform.CauseNonHardware:
		res.RebootCause = hw
		res.Hardware = true
	case sw.Cause != "":
		res.RebootCause = sw
	default:
		res.RebootCause = platform.RebootCause{Cause: platform.CauseUnknown}
	}
	if res.Time.IsZero() {
		res.Time = time.Now()
	}

	if err := d.resetCauseFile(); err != nil {
		logger.Warn("rebootcause: failed to reset cause file", "error", err)
	}
	if state != nil {
		state.AddRebootCause(persistence.RebootRecord{
			Cause:    res.Cause,
			Detail:   res.Detail,
			Hardware: res.Hardware,
			Time:     res.Time,
			BootTime: boot,
		}, d.Limit)
		if err := d.Store.Save(state); err != nil {
			return res, fmt.Errorf("failed to save reboot cause: %w", err)
		}
	}
	res.Recorded = true
	return res, nil
}

// History returns the recorded causes, newest first.
func (d *Determiner) History() ([]persistence.RebootRecord, error) {
	if d.Store == nil {
		return nil, nil
	}
	state, err := d.Store.LoadFor(d.Platform)
	if err != nil {
		return nil, err
	}
	return state.RebootCauses, nil
}

func (d *Determiner) hardware(ctx context.Context) (platform.RebootCause, error) {
	if d.Hardware == nil {
		return platform.RebootCause{}, platform.ErrNotSupported
	}
	return d.Hardware.RebootCause(ctx)
}

func (d *Determiner) causeFile() string {
	if d.CauseFile == "" {
		return DefaultCauseFile
	}
	return d.CauseFile
}

// software reads the cause file. A missing file is not an error.
func (d *Determiner) software() (platform.RebootCause, error) {
	data, err := os.ReadFile(d.causeFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return platform.RebootCause{}, nil
		}
		return platform.RebootCause{}, err
	}
	return ParseCause(string(data)), nil
}

func (d *Determiner) resetCauseFile() error {
	path := d.causeFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(platform.CauseUnknown+"\n"), 0644)
}

// ParseCause splits a cause line into the cause and the bracketed detail.
// "Unknown" and blank lines yield an empty cause.
func ParseCause(line string) platform.RebootCause {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" || line == platform.CauseUnknown {
		return platform.RebootCause{}
	}
	rc := platform.RebootCause{Cause: line}
	if i := strings.Index(line, " ["); i > 0 && strings.HasSuffix(line, "]") {
		rc.Cause = line[:i]
		rc.Detail = line[i+2 : len(line)-1]
	}
	return rc
}

// Package watchdog drives the Linux hardware watchdog character device.
package watchdog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/netplatform/pmon-go/pkg/platform"
)

// DefaultDevice is the watchdog used when none is configured.
const DefaultDevice = "/dev/watchdog"

// Device is an open watchdog character device.
type Device interface {
	// SetTimeout requests a timeout and returns the one applied.
	SetTimeout(seconds int) (int, error)
	Enable() error
	Disable() error
	Keepalive() error
	TimeLeft() (int, error)

	// MagicClose writes 'V' so that closing does not trigger a reset.
	MagicClose() error
	Close() error
}

// Opener opens the device at path.
type Opener func(path string) (Device, error)

// Watchdog implements platform.Watchdog. The device is opened on first Arm
// and closed on Disarm.
type Watchdog struct {
	path   string
	open   Opener
	logger *slog.Logger

	mu      sync.Mutex
	dev     Device
	armed   bool
	timeout int
}

var _ platform.Watchdog = (*Watchdog)(nil)

// New returns a watchdog for the device at path.
func New(path string) *Watchdog {
	return NewWithOpener(path, Open)
}

// NewWithOpener returns a watchdog that opens devices with open.
func NewWithOpener(path string, open Opener) *Watchdog {
	if path == "" {
		path = DefaultDevice
	}
	return &Watchdog{path: path, open: open, logger: slog.Default()}
}

// SetLogger sets the logger.
func (w *Watchdog) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Path returns the device path.
func (w *Watchdog) Path() string {
	return w.path
}

// Arm starts the watchdog with the given timeout, or updates the timeout and
// refreshes it if already armed. It returns the timeout the driver applied.
func (w *Watchdog) Arm(seconds int) (int, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("%w: negative timeout %d", platform.ErrInvalidArgument, seconds)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	opened := false
	if w.dev == nil {
		dev, err := w.open(w.path)
		if err != nil {
			return 0, fmt.Errorf("failed to open watchdog %s: %w", w.path, err)
		}
		w.dev = dev
		opened = true
	}

	if !w.armed || seconds != w.timeout {
		applied, err := w.dev.SetTimeout(seconds)
		if err != nil {
			return 0, w.abort(opened, fmt.Errorf("failed to set watchdog timeout: %w", err))
		}
		w.timeout = applied
	}
	if !w.armed {
		if err := w.dev.Enable(); err != nil {
			return 0, w.abort(opened, fmt.Errorf("failed to enable watchdog: %w", err))
		}
		w.armed = true
		w.logger.Info("watchdog armed", "device", w.path, "timeout", w.timeout)
	}
	if err := w.dev.Keepalive(); err != nil {
		return 0, w.abort(opened, fmt.Errorf("failed to refresh watchdog: %w", err))
	}
	return w.timeout, nil
}

// abort releases a device opened by a failed Arm. Most drivers start the
// timer on open, so the magic close is needed to keep the system up.
func (w *Watchdog) abort(opened bool, err error) error {
	if !opened {
		return err
	}
	if cerr := w.dev.MagicClose(); cerr != nil {
		w.logger.Warn("watchdog magic close failed", "device", w.path, "error", cerr)
	}
	if cerr := w.dev.Close(); cerr != nil {
		w.logger.Warn("failed to close watchdog", "device", w.path, "error", cerr)
	}
	w.dev = nil
	w.armed = false
	return err
}

// Keepalive refreshes an armed watchdog.
func (w *Watchdog) Keepalive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return fmt.Errorf("watchdog not armed: %w", platform.ErrNotSupported)
	}
	return w.dev.Keepalive()
}

// Disarm stops the watchdog and closes the device.
func (w *Watchdog) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev == nil {
		return nil
	}
	if err := w.dev.Disable(); err != nil {
		return fmt.Errorf("failed to disable watchdog: %w", err)
	}
	if err := w.dev.MagicClose(); err != nil {
		w.logger.Warn("watchdog magic close failed", "device", w.path, "error", err)
	}
	err := w.dev.Close()
	w.dev = nil
	w.armed = false
	w.logger.Info("watchdog disarmed", "device", w.path)
	return err
}

// IsArmed reports whether the watchdog is running.
func (w *Watchdog) IsArmed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Remaining returns the seconds before expiry, or -1 when disarmed.
func (w *Watchdog) Remaining() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return -1, nil
	}
	return w.dev.TimeLeft()
}

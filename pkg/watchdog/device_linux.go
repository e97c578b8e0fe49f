//go:build linux

package watchdog

import (
	"os"

	"golang.org/x/sys/unix"
)

type fileDevice struct {
	f *os.File
}

// Open opens a Linux watchdog device.
func Open(path string) (Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) fd() int { return int(d.f.Fd()) }

func (d *fileDevice) SetTimeout(seconds int) (int, error) {
	if err := unix.IoctlSetPointerInt(d.fd(), unix.WDIOC_SETTIMEOUT, seconds); err != nil {
		return 0, err
	}
	return unix.IoctlGetInt(d.fd(), unix.WDIOC_GETTIMEOUT)
}

func (d *fileDevice) Enable() error {
	return unix.IoctlSetPointerInt(d.fd(), unix.WDIOC_SETOPTIONS, unix.WDIOS_ENABLECARD)
}

func (d *fileDevice) Disable() error {
	return unix.IoctlSetPointerInt(d.fd(), unix.WDIOC_SETOPTIONS, unix.WDIOS_DISABLECARD)
}

func (d *fileDevice) Keepalive() error {
	return unix.IoctlWatchdogKeepalive(d.fd())
}

func (d *fileDevice) TimeLeft() (int, error) {
	return unix.IoctlGetInt(d.fd(), unix.WDIOC_GETTIMELEFT)
}

func (d *fileDevice) MagicClose() error {
	_, err := d.f.Write([]byte("V"))
	return err
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}

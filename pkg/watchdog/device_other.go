//go:build !linux

package watchdog

import (
	"fmt"

	"github.com/netplatform/pmon-go/pkg/platform"
)

// Open is only supported on Linux.
func Open(path string) (Device, error) {
	return nil, fmt.Errorf("watchdog %s: %w", path, platform.ErrNotSupported)
}

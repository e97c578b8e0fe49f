package xcvr

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/netplatform/pmon-go/pkg/platform"
)

// PresenceSource reads the presence of every port at once.
type PresenceSource interface {
	Presence(ctx context.Context) (Bitmap, error)
}

// PresenceFunc adapts a function to PresenceSource.
type PresenceFunc func(ctx context.Context) (Bitmap, error)

// Presence calls f.
func (f PresenceFunc) Presence(ctx context.Context) (Bitmap, error) {
	return f(ctx)
}

// ReadError reports ports whose presence could not be read. The bitmap
// returned alongside it is valid for every other port.
type ReadError struct {
	Ports []int
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("presence read failed for ports %v: %v", e.Ports, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Transceivers reads presence from each transceiver in turn.
type Transceivers []platform.Transceiver

// Presence implements PresenceSource.
func (ts Transceivers) Presence(ctx context.Context) (Bitmap, error) {
	var (
		b      Bitmap
		failed []int
		errs   []error
	)
	for _, t := range ts {
		present, err := t.Presence(ctx)
		if err != nil {
			failed = append(failed, t.Port())
			errs = append(errs, err)
			continue
		}
		b.Put(t.Port(), present)
	}
	if len(failed) > 0 {
		return b, &ReadError{Ports: failed, Err: errors.Join(errs...)}
	}
	return b, nil
}

// Register is a status register whose bits report the presence of
// consecutive ports, least significant bit first.
type Register struct {
	Read      func(ctx context.Context) (uint64, error)
	FirstPort int
	Bits      int
	ActiveLow bool
}

// Registers reads presence from a set of registers.
type Registers []Register

// Presence implements PresenceSource.
func (rs Registers) Presence(ctx context.Context) (Bitmap, error) {
	var (
		b      Bitmap
		failed []int
		errs   []error
	)
	for _, r := range rs {
		v, err := r.Read(ctx)
		if err != nil {
			for n := 0; n < r.Bits; n++ {
				failed = append(failed, r.FirstPort+n)
			}
			errs = append(errs, err)
			continue
		}
		if r.ActiveLow {
			v = ^v
		}
		for n := 0; n < r.Bits; n++ {
			b.Put(r.FirstPort+n, v&(1<<uint(n)) != 0)
		}
	}
	if len(failed) > 0 {
		sort.Ints(failed)
		return b, &ReadError{Ports: failed, Err: errors.Join(errs...)}
	}
	return b, nil
}

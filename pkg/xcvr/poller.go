package xcvr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/netplatform/pmon-go/pkg/platform"
)

// DefaultInterval is the polling interval used when Poller.Interval is zero.
const DefaultInterval = time.Second

// Poller detects transceiver insertion and removal by polling a
// PresenceSource and diffing each reading against a baseline.
type Poller struct {
	Source PresenceSource

	// Interval is the delay between reads.
	Interval time.Duration

	// Debounce is the number of consecutive reads a new presence state must
	// be seen in before it is reported. Zero and one report immediately.
	Debounce int

	// ReportErrors turns per-port read failures into EventError entries.
	// Otherwise they are logged and the port keeps its previous state.
	ReportErrors bool

	Logger *slog.Logger

	mu        sync.Mutex
	baseline  Bitmap
	primed    bool
	candidate Bitmap
	streak    int

	// failing maps ports whose last read failed to the error reported for
	// them, so each failure is reported once until the port reads again.
	failing map[int]string
	srcErr  string
}

// NewPoller creates a poller reading from src.
func NewPoller(src PresenceSource) *Poller {
	return &Poller{Source: src}
}

// Prime sets the baseline explicitly, e.g. from presence persisted before a
// restart. Differences to the first reading are then reported.
func (p *Poller) Prime(b Bitmap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseline = b.Clone()
	p.primed = true
	p.candidate, p.streak = nil, 0
	p.failing, p.srcErr = nil, ""
}

// Baseline returns a copy of the last reported presence state.
func (p *Poller) Baseline() Bitmap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseline.Clone()
}

// WaitChange blocks until at least one port changes, timeout elapses or ctx
// is done. A zero timeout waits indefinitely. Expiry returns an empty set
// and no error. The first call on an unprimed poller records the baseline
// and only reports changes after it.
func (p *Poller) WaitChange(ctx context.Context, timeout time.Duration) (platform.ChangeSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	tick := time.NewTicker(p.interval())
	defer tick.Stop()

	for {
		if !p.primed {
			p.prime(ctx)
		} else if events := p.poll(ctx); len(events) > 0 {
			return events, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			return platform.ChangeSet{}, nil
		case <-tick.C:
		}
	}
}

// Run reports changes to fn until ctx is done.
func (p *Poller) Run(ctx context.Context, fn func(platform.ChangeSet)) error {
	for {
		events, err := p.WaitChange(ctx, 0)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		fn(events)
	}
}

func (p *Poller) prime(ctx context.Context) {
	b, rerr, ok := p.read(ctx)
	if !ok {
		return
	}
	// With ReportErrors the first poll reports ports failing here.
	if rerr != nil && !p.ReportErrors {
		if ports := p.noteFailures(rerr); len(ports) > 0 {
			p.logger().Warn("xcvr: presence read failed", "ports", ports, "error", rerr.Err)
		}
	}
	p.baseline = b
	p.primed = true
}

// read reads presence. ok is false when the whole source failed, which is
// logged once until a read succeeds again.
func (p *Poller) read(ctx context.Context) (b Bitmap, rerr *ReadError, ok bool) {
	b, err := p.Source.Presence(ctx)
	if err != nil && !errors.As(err, &rerr) {
		if msg := err.Error(); msg != p.srcErr {
			p.logger().Warn("xcvr: presence read failed", "error", err)
			p.srcErr = msg
		}
		return nil, nil, false
	}
	if p.srcErr != "" {
		p.logger().Info("xcvr: presence read recovered")
		p.srcErr = ""
	}
	return b, rerr, true
}

// noteFailures records the ports failing in rerr, forgets ports that read
// again and returns the ports whose failure is new or has changed.
func (p *Poller) noteFailures(rerr *ReadError) []int {
	msg := ""
	failed := make(map[int]bool)
	if rerr != nil {
		if rerr.Err != nil {
			msg = rerr.Err.Error()
		}
		for _, port := range rerr.Ports {
			failed[port] = true
		}
	}
	for port := range p.failing {
		if !failed[port] {
			p.logger().Info("xcvr: presence read recovered", "port", port)
			delete(p.failing, port)
		}
	}
	if rerr == nil {
		return nil
	}
	if p.failing == nil {
		p.failing = make(map[int]string)
	}
	var fresh []int
	for _, port := range rerr.Ports {
		if p.failing[port] != msg {
			p.failing[port] = msg
			fresh = append(fresh, port)
		}
	}
	return fresh
}

func (p *Poller) poll(ctx context.Context) platform.ChangeSet {
	b, rerr, ok := p.read(ctx)
	if !ok {
		return nil
	}

	events := make(platform.ChangeSet)
	fresh := p.noteFailures(rerr)
	if rerr != nil {
		// Failed ports keep their previous state.
		for _, port := range rerr.Ports {
			b.Put(port, p.baseline.Test(port))
		}
	}
	switch {
	case len(fresh) == 0:
	case p.ReportErrors:
		for _, port := range fresh {
			events[port] = platform.EventError
		}
	default:
		p.logger().Warn("xcvr: presence read failed", "ports", fresh, "error", rerr.Err)
	}

	if b.Equal(p.baseline) {
		p.candidate, p.streak = nil, 0
		return events
	}
	if p.candidate != nil && b.Equal(p.candidate) {
		p.streak++
	} else {
		p.candidate, p.streak = b, 1
	}
	if p.streak < p.Debounce {
		return events
	}

	changed := p.baseline.Xor(b)
	changed.ForeachSetBit(func(port int) {
		if b.Test(port) {
			events[port] = platform.EventInserted
		} else {
			events[port] = platform.EventRemoved
		}
	})
	p.baseline = b
	p.candidate, p.streak = nil, 0
	return events
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

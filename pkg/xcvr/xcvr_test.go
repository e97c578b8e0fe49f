package xcvr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netplatform/pmon-go/pkg/platform"
)

func bitmapOf(ports ...int) Bitmap {
	var b Bitmap
	for _, p := range ports {
		b.Set(p)
	}
	return b
}

// scripted returns the readings in order and repeats the last one.
type scripted struct {
	mu       sync.Mutex
	readings []reading
	calls    int
}

type reading struct {
	b   Bitmap
	err error
}

func (s *scripted) Presence(context.Context) (Bitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.readings[min(s.calls, len(s.readings)-1)]
	s.calls++
	return r.b.Clone(), r.err
}

func TestBitmap(t *testing.T) {
	var b Bitmap
	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(130)
	assert.Len(t, b, 3)
	assert.True(t, b.Test(63))
	assert.True(t, b.Test(64))
	assert.False(t, b.Test(65))
	assert.False(t, b.Test(1000))
	assert.False(t, b.Test(-1))
	assert.Equal(t, []int{0, 63, 64, 130}, b.Ones())

	b.Clear(63)
	b.Clear(5000)
	assert.False(t, b.Test(63))

	x := bitmapOf(1, 2).Xor(bitmapOf(2, 70))
	assert.Equal(t, []int{1, 70}, x.Ones())

	assert.True(t, bitmapOf(3).Equal(append(bitmapOf(3), 0, 0)))
	assert.True(t, NewBitmap(128).Empty())
	assert.Len(t, NewBitmap(65), 2)

	c := b.Clone()
	c.Set(1)
	assert.False(t, b.Test(1))
}

func TestWaitChange(t *testing.T) {
	t.Run("InsertAndRemove", func(t *testing.T) {
		src := &scripted{readings: []reading{
			{b: bitmapOf(1, 2)},
			{b: bitmapOf(1, 2)},
			{b: bitmapOf(1, 3, 66)},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond}

		events, err := p.WaitChange(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{
			2:  platform.EventRemoved,
			3:  platform.EventInserted,
			66: platform.EventInserted,
		}, events)
		assert.Equal(t, []int{1, 3, 66}, p.Baseline().Ones())
	})

	t.Run("TimeoutReturnsEmpty", func(t *testing.T) {
		src := &scripted{readings: []reading{{b: bitmapOf(4)}}}
		p := &Poller{Source: src, Interval: time.Millisecond}

		events, err := p.WaitChange(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("ContextCancel", func(t *testing.T) {
		src := &scripted{readings: []reading{{b: bitmapOf(4)}}}
		p := &Poller{Source: src, Interval: time.Millisecond}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := p.WaitChange(ctx, 0)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("PrimedBaseline", func(t *testing.T) {
		src := &scripted{readings: []reading{{b: bitmapOf(0)}}}
		p := &Poller{Source: src, Interval: time.Millisecond}
		p.Prime(bitmapOf(0, 1))

		events, err := p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{1: platform.EventRemoved}, events)
	})

	t.Run("Debounce", func(t *testing.T) {
		src := &scripted{readings: []reading{
			{b: bitmapOf()},
			{b: bitmapOf(5)}, // glitch
			{b: bitmapOf()},
			{b: bitmapOf(7)},
			{b: bitmapOf(7)},
			{b: bitmapOf(7)},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond, Debounce: 3}

		events, err := p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{7: platform.EventInserted}, events)
		assert.Equal(t, 6, src.calls)
	})

	t.Run("PortErrorsReported", func(t *testing.T) {
		boom := errors.New("i2c timeout")
		src := &scripted{readings: []reading{
			{b: bitmapOf(1)},
			{b: bitmapOf(), err: &ReadError{Ports: []int{1}, Err: boom}},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond, ReportErrors: true}

		events, err := p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{1: platform.EventError}, events)
		assert.True(t, p.Baseline().Test(1))
	})

	t.Run("PortErrorsIgnored", func(t *testing.T) {
		src := &scripted{readings: []reading{
			{b: bitmapOf(1)},
			{b: bitmapOf(), err: &ReadError{Ports: []int{1}, Err: errors.New("nack")}},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond}

		events, err := p.WaitChange(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("PortErrorReportedOnce", func(t *testing.T) {
		boom := &ReadError{Ports: []int{1}, Err: errors.New("i2c timeout")}
		src := &scripted{readings: []reading{
			{b: bitmapOf(1)},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(1)},
			{b: bitmapOf(), err: boom},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond, ReportErrors: true}

		events, err := p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{1: platform.EventError}, events)

		// Two more failing reads stay quiet; the failure after the
		// recovery is reported again.
		events, err = p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{1: platform.EventError}, events)
		assert.Equal(t, 6, src.calls)
	})

	t.Run("PortWarningLoggedOnce", func(t *testing.T) {
		var buf bytes.Buffer
		boom := &ReadError{Ports: []int{1, 2}, Err: errors.New("nack")}
		src := &scripted{readings: []reading{
			{b: bitmapOf(1)},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(), err: boom},
			{b: bitmapOf(), err: boom},
		}}
		p := &Poller{
			Source:   src,
			Interval: time.Millisecond,
			Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
		}

		events, err := p.WaitChange(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Greater(t, src.calls, 3)
		assert.Equal(t, 1, strings.Count(buf.String(), "presence read failed"), buf.String())
	})

	t.Run("SourceFailureLoggedOnce", func(t *testing.T) {
		var buf bytes.Buffer
		src := &scripted{readings: []reading{{err: errors.New("bus busy")}}}
		p := &Poller{
			Source:   src,
			Interval: time.Millisecond,
			Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
		}

		_, err := p.WaitChange(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		assert.Greater(t, src.calls, 2)
		assert.Equal(t, 1, strings.Count(buf.String(), "presence read failed"), buf.String())
	})

	t.Run("SourceFailureRetried", func(t *testing.T) {
		src := &scripted{readings: []reading{
			{err: errors.New("bus busy")},
			{b: bitmapOf(2)},
			{err: errors.New("bus busy")},
			{b: bitmapOf()},
		}}
		p := &Poller{Source: src, Interval: time.Millisecond}

		events, err := p.WaitChange(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, platform.ChangeSet{2: platform.EventRemoved}, events)
	})
}

func TestRun(t *testing.T) {
	src := &scripted{readings: []reading{{b: bitmapOf()}, {b: bitmapOf(9)}}}
	p := NewPoller(src)
	p.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var got []platform.ChangeSet
	err := p.Run(ctx, func(cs platform.ChangeSet) {
		got = append(got, cs)
		cancel()
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, platform.EventInserted, got[0][9])
}

type fakeXcvr struct {
	platform.Transceiver
	port    int
	present bool
	err     error
}

func (f fakeXcvr) Port() int                              { return f.port }
func (f fakeXcvr) Presence(context.Context) (bool, error) { return f.present, f.err }

func TestTransceiversSource(t *testing.T) {
	src := Transceivers{
		fakeXcvr{port: 0, present: true},
		fakeXcvr{port: 1},
		fakeXcvr{port: 2, err: errors.New("eio")},
		fakeXcvr{port: 3, present: true},
	}
	b, err := src.Presence(context.Background())
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []int{2}, rerr.Ports)
	assert.Equal(t, []int{0, 3}, b.Ones())
}

func TestRegistersSource(t *testing.T) {
	reg := func(v uint64, err error) func(context.Context) (uint64, error) {
		return func(context.Context) (uint64, error) { return v, err }
	}
	src := Registers{
		{Read: reg(0b1010, nil), FirstPort: 0, Bits: 4},
		{Read: reg(0b1110, nil), FirstPort: 4, Bits: 4, ActiveLow: true},
		{Read: reg(0, errors.New("nack")), FirstPort: 8, Bits: 2},
	}
	b, err := src.Presence(context.Background())
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []int{8, 9}, rerr.Ports)
	assert.Equal(t, []int{1, 3, 4}, b.Ones())
}

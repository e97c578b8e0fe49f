package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/generic"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/metrics"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/platform/platformtest"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/statedb"
	"github.com/netplatform/pmon-go/pkg/statedb/statedbtest"
	"github.com/netplatform/pmon-go/pkg/subscription"
	"github.com/netplatform/pmon-go/pkg/sysfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlatform = "x86_64-acme_ds4000-r0"

type recorder struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (r *recorder) Log(e eventlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofKind(k eventlog.Kind) []eventlog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventlog.Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ch    *platformtest.Chassis
	mon   *Monitor
	rec   *recorder
	mem   *statedbtest.Memory
	clk   *clock
	met   *metrics.Collectors
	subs  *subscription.Manager
	store *persistence.StateStore
	cause string
}

func newFixture(t *testing.T, presence []uint64) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		ch:    platformtest.NewChassis(),
		rec:   &recorder{},
		mem:   statedbtest.NewMemory(),
		clk:   &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		met:   metrics.New(),
		subs:  subscription.NewManager(),
		store: persistence.NewStateStore(filepath.Join(dir, "state.json")),
		cause: filepath.Join(dir, "reboot-cause.txt"),
	}
	require.NoError(t, os.WriteFile(f.cause, []byte("User issued 'reboot' command [User: admin]\n"), 0644))
	if presence != nil {
		require.NoError(t, f.store.Save(&persistence.PlatformState{Platform: testPlatform, Presence: presence}))
	}

	pub := statedb.NewPublisher(f.mem,
		statedb.WithClock(f.clk.now),
		statedb.WithBackoff(connection.NewBackoffWithConfig(connection.BackoffConfig{Initial: time.Second, Max: 8 * time.Second})),
	)
	boot := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mon, err := New(f.ch, Config{
		Platform:        testPlatform,
		HwSKU:           "ACME-DS4000-32C",
		FanInterval:     time.Hour,
		PSUInterval:     time.Hour,
		ThermalInterval: time.Hour,
		DOMInterval:     time.Hour,
		SystemInterval:  time.Hour,
		NotifyInterval:  10 * time.Millisecond,
		ChangeTimeout:   20 * time.Millisecond,
		Events:          f.rec,
		Publisher:       pub,
		Metrics:         f.met,
		Subscriptions:   f.subs,
		Store:           f.store,
		RebootCause: &rebootcause.Determiner{
			Hardware:  f.ch,
			CauseFile: f.cause,
			Store:     f.store,
			Platform:  testPlatform,
			BootTime:  func() (time.Time, error) { return boot, nil },
		},
	})
	require.NoError(t, err)
	f.mon = mon
	return f
}

func (f *fixture) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.mon.Start(ctx))
	t.Cleanup(func() {
		f.mon.Stop()
		cancel()
	})
	return ctx
}

func (f *fixture) fan(n int) *platformtest.Fan {
	return f.ch.Drawer(0).Members[n].(*platformtest.Fan)
}

func (f *fixture) thermal(n int) *platformtest.Thermal {
	return f.ch.ThermalList[n].(*platformtest.Thermal)
}

func TestStart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)
	assert.ErrorIs(t, f.mon.Start(ctx), ErrAlreadyStarted)

	t.Run("RebootCause", func(t *testing.T) {
		rc := f.mon.RebootCause()
		require.NotNil(t, rc)
		assert.Equal(t, "User issued 'reboot' command", rc.Cause)
		assert.False(t, rc.Hardware)

		events := f.rec.ofKind(eventlog.KindRebootCause)
		require.Len(t, events, 1)
		assert.Equal(t, testPlatform, events[0].Platform)
		assert.Equal(t, "User: admin", events[0].RebootCause.Detail)

		h := f.mem.Hash("CHASSIS_INFO|chassis 1")
		require.NotNil(t, h)
		assert.Equal(t, "User issued 'reboot' command (User: admin)", h["reboot_cause"])
		assert.Equal(t, "ACME-DS4000-32C", h["hwsku"])

		var causes []string
		for _, k := range f.mem.KeyList() {
			if strings.HasPrefix(k, "REBOOT_CAUSE|") {
				causes = append(causes, f.mem.Hash(k)["cause"])
			}
		}
		assert.Equal(t, []string{"User issued 'reboot' command"}, causes)
	})

	t.Run("InitialState", func(t *testing.T) {
		assert.Equal(t, "50", f.mem.Hash("FAN_INFO|FAN-1F")["speed"])
		assert.Equal(t, "45.000", f.mem.Hash("TEMPERATURE_INFO|CPU Core")["temperature"])
		assert.Equal(t, "0", f.mem.Hash("TRANSCEIVER_STATUS|Ethernet0")["status"])
		assert.Equal(t, 12.0, testutil.ToFloat64(f.met.PSUVoltage.WithLabelValues("PSU 1")))
	})

	t.Run("FanPolicy", func(t *testing.T) {
		assert.Equal(t, []int{60}, f.fan(0).SpeedSets())
		assert.Equal(t, 60, f.mon.Policy().Applied())
		assert.Equal(t, 60.0, testutil.ToFloat64(f.met.FanTarget))
	})

	t.Run("NoStartupEvents", func(t *testing.T) {
		assert.Empty(t, f.rec.ofKind(eventlog.KindPresence))
		assert.Empty(t, f.rec.ofKind(eventlog.KindError))
	})
}

func TestRebootCauseRecordedOncePerBoot(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.mon.Stop()

	mon, err := New(f.ch, f.mon.cfg)
	require.NoError(t, err)
	require.NoError(t, mon.Start(context.Background()))
	defer mon.Stop()

	assert.Equal(t, "User issued 'reboot' command", mon.RebootCause().Cause)
	assert.Len(t, f.rec.ofKind(eventlog.KindRebootCause), 1)
}

func TestTransceiverChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	f.ch.Xcvr(1).Insert()
	f.mon.HandleChanges(ctx, platform.ChangeSet{1: platform.EventInserted})

	events := f.rec.ofKind(eventlog.KindPresence)
	require.Len(t, events, 1)
	assert.Equal(t, "Ethernet4", events[0].Component)
	assert.Equal(t, model.ComponentTransceiver, events[0].ComponentType)
	assert.Equal(t, &eventlog.PresenceEvent{Present: true, Port: 1}, events[0].Presence)

	assert.Equal(t, "1", f.mem.Hash("TRANSCEIVER_STATUS|Ethernet4")["status"])
	assert.Equal(t, "ACME OPTICS", f.mem.Hash("TRANSCEIVER_INFO|Ethernet4")["manufacturer"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.met.XcvrPresent.WithLabelValues("Ethernet4", "1")))

	f.ch.Xcvr(1).Remove()
	f.mon.HandleChanges(ctx, platform.ChangeSet{1: platform.EventRemoved, 2: platform.EventError, 9: platform.EventInserted})

	events = f.rec.ofKind(eventlog.KindPresence)
	require.Len(t, events, 2)
	assert.False(t, events[1].Presence.Present)
	assert.Nil(t, f.mem.Hash("TRANSCEIVER_INFO|Ethernet4"))
	assert.Equal(t, "0", f.mem.Hash("TRANSCEIVER_STATUS|Ethernet4")["status"])

	errs := f.rec.ofKind(eventlog.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Ethernet8", errs[0].Component)
	assert.Equal(t, "port 2", errs[0].Error.Context)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.met.EventsTotal.WithLabelValues("PRESENCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.met.EventsTotal.WithLabelValues("ERROR")))
}

func TestChangeEventLoop(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	f.ch.Xcvr(3).Insert()
	f.ch.Events <- platform.ChangeSet{3: platform.EventInserted}

	assert.Eventually(t, func() bool {
		return f.mem.Hash("TRANSCEIVER_INFO|Ethernet12") != nil
	}, 2*time.Second, 10*time.Millisecond)

	f.mon.Stop()
	state, err := f.store.LoadFor(testPlatform)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1 << 3}, state.Presence)
}

func TestOfflinePresenceChanges(t *testing.T) {
	// Port 1 was populated when pmond last ran; all cages are empty now.
	f := newFixture(t, []uint64{1 << 1})
	f.start(t)

	events := f.rec.ofKind(eventlog.KindPresence)
	require.Len(t, events, 1)
	assert.Equal(t, "Ethernet4", events[0].Component)
	assert.False(t, events[0].Presence.Present)
}

func TestDeviceEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	f.fan(1).SetPresent(false)
	f.mon.PollFans(ctx)

	events := f.rec.ofKind(eventlog.KindPresence)
	require.Len(t, events, 1)
	assert.Equal(t, "FAN-1R", events[0].Component)
	assert.Equal(t, eventlog.SeverityWarning, events[0].Severity)
	assert.Equal(t, -1, events[0].Presence.Port)
	assert.Equal(t, "false", f.mem.Hash("FAN_INFO|FAN-1R")["presence"])

	f.mon.PollThermals(ctx)
	assert.Equal(t, []int{60, 100}, f.fan(0).SpeedSets())
	assert.Equal(t, 100.0, testutil.ToFloat64(f.met.FanTarget))
}

func TestThresholdEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	f.thermal(1).SetTemperature(85)
	f.mon.PollThermals(ctx)

	events := f.rec.ofKind(eventlog.KindThreshold)
	require.Len(t, events, 1)
	assert.Equal(t, "ASIC", events[0].Component)
	assert.Equal(t, testPlatform, events[0].Platform)
	assert.Equal(t, "85.000", f.mem.Hash("TEMPERATURE_INFO|ASIC")["temperature"])
	assert.Equal(t, "True", f.mem.Hash("TEMPERATURE_INFO|ASIC")["warning_status"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.met.EventsTotal.WithLabelValues("THRESHOLD")))
}

func TestHardwareErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	f.thermal(0).Err = assert.AnError
	f.mon.PollThermals(ctx)
	f.mon.PollThermals(ctx)

	errs := f.rec.ofKind(eventlog.KindError)
	require.Len(t, errs, 1, "repeated failures are reported once")
	assert.Equal(t, "thermals", errs[0].Error.Context)
	assert.Equal(t, "N/A", f.mem.Hash("TEMPERATURE_INFO|CPU Core")["temperature"])

	f.thermal(0).Err = nil
	f.mon.PollThermals(ctx)
	f.thermal(0).Err = assert.AnError
	f.mon.PollThermals(ctx)
	assert.Len(t, f.rec.ofKind(eventlog.KindError), 2)
}

func TestStateDatabaseOutage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	f.mem.SetDown(true)
	f.thermal(0).SetTemperature(70)
	f.mon.PollThermals(ctx)
	assert.Equal(t, "45.000", f.mem.Hash("TEMPERATURE_INFO|CPU Core")["temperature"])

	// Entries lost while the server was away are restored on resync.
	f.mem.SetDown(false)
	f.mem.Del("PSU_INFO|PSU 1")
	f.clk.advance(2 * time.Second)

	f.mon.PollThermals(ctx)
	assert.Equal(t, "70.000", f.mem.Hash("TEMPERATURE_INFO|CPU Core")["temperature"])
	assert.Equal(t, "12.000", f.mem.Hash("PSU_INFO|PSU 1")["voltage"])

	t.Run("RestartWithoutChanges", func(t *testing.T) {
		f.mem.Flush()
		f.mon.PollFans(ctx)
		assert.Equal(t, "12.000", f.mem.Hash("PSU_INFO|PSU 1")["voltage"])
		assert.Equal(t, "70.000", f.mem.Hash("TEMPERATURE_INFO|CPU Core")["temperature"])
		assert.Equal(t, "ACME-DS4000-32C", f.mem.Hash("CHASSIS_INFO|chassis 1")["hwsku"])

		var causes int
		for _, k := range f.mem.KeyList() {
			if strings.HasPrefix(k, "REBOOT_CAUSE|") {
				causes++
			}
		}
		assert.Equal(t, 1, causes)
	})
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.start(t)

	var mu sync.Mutex
	var got []subscription.Notification
	f.subs.OnNotification(func(n subscription.Notification) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
	})
	filter := subscription.Filter{Type: model.ComponentThermal}
	_, err := f.subs.Subscribe(filter, 0, time.Minute, subscription.Snapshot(f.mon.Inventory().Inventory, filter))
	require.NoError(t, err)

	f.thermal(0).SetTemperature(55)
	f.mon.PollThermals(ctx)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range got {
			if !n.IsPriming && n.Changes["thermal/CPU Core"]["temperature"] == 55.0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

const portsDescriptor = `
platform: x86_64-acme_ds4000-r0
ports:
  count: 2
  name: Ethernet{lane}
  laneStride: 4
  presence: {kind: sysfs, path: "/xcvr/port{index}/present", parse: bool}
`

func TestTransceiverReadErrorsReportedOnce(t *testing.T) {
	root := t.TempDir()
	present := func(port, value string) {
		p := filepath.Join(root, "xcvr", port, "present")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(value), 0o644))
	}
	present("port0", "0\n")
	// port1 has no presence attribute yet.

	desc, err := descriptor.Parse([]byte(portsDescriptor))
	require.NoError(t, err)
	ch, err := generic.NewChassis(desc, generic.Options{
		FS:           sysfs.New(root),
		PollInterval: time.Millisecond,
		ReportErrors: true,
	})
	require.NoError(t, err)

	rec := &recorder{}
	mon, err := New(ch, Config{
		Platform:       testPlatform,
		FanInterval:    time.Hour,
		PSUInterval:    time.Hour,
		DOMInterval:    time.Hour,
		SystemInterval: time.Hour,
		NotifyInterval: 10 * time.Millisecond,
		ChangeTimeout:  20 * time.Millisecond,
		Events:         rec,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mon.Start(ctx))
	defer mon.Stop()

	xcvrErrors := func() []eventlog.Event {
		var out []eventlog.Event
		for _, e := range rec.ofKind(eventlog.KindError) {
			if e.ComponentType == model.ComponentTransceiver {
				out = append(out, e)
			}
		}
		return out
	}

	require.Eventually(t, func() bool { return len(xcvrErrors()) > 0 }, 2*time.Second, 5*time.Millisecond)
	// Many more polls of the failing port.
	time.Sleep(100 * time.Millisecond)
	errs := xcvrErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "Ethernet4", errs[0].Component)
	assert.Equal(t, "port 1", errs[0].Error.Context)

	// A failure after the port read again is a new error.
	present("port1", "0\n")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, xcvrErrors(), 1)
	require.NoError(t, os.Remove(filepath.Join(root, "xcvr", "port1", "present")))
	assert.Eventually(t, func() bool { return len(xcvrErrors()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

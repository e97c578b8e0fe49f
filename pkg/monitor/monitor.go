package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/netplatform/pmon-go/pkg/inventory"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/metrics"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/statedb"
	"github.com/netplatform/pmon-go/pkg/subscription"
	"github.com/netplatform/pmon-go/pkg/thermalctl"
	"github.com/netplatform/pmon-go/pkg/xcvr"
)

// Default refresh intervals.
const (
	DefaultFanInterval     = 5 * time.Second
	DefaultPSUInterval     = 3 * time.Second
	DefaultThermalInterval = 5 * time.Second
	DefaultDOMInterval     = 60 * time.Second
	DefaultSystemInterval  = 60 * time.Second
	DefaultNotifyInterval  = 200 * time.Millisecond
	DefaultChangeTimeout   = time.Second
)

// ErrAlreadyStarted is returned by Start on a running monitor.
var ErrAlreadyStarted = errors.New("monitor already started")

// Job groups, also used as the context of error events.
const (
	groupFans     = "fans"
	groupPSUs     = "psus"
	groupThermals = "thermals"
	groupDOM      = "dom"
	groupSystem   = "system"
	groupNotify   = "notify"
)

// Config configures a Monitor. Zero intervals use the defaults; nil sinks
// are skipped.
type Config struct {
	Platform string
	HwSKU    string

	FanInterval     time.Duration
	PSUInterval     time.Duration
	ThermalInterval time.Duration
	DOMInterval     time.Duration
	SystemInterval  time.Duration

	// NotifyInterval is how often due stream notifications are sent.
	NotifyInterval time.Duration

	// ChangeTimeout bounds each wait for transceiver change events.
	ChangeTimeout time.Duration

	// Thermal configures the fan policy. Events and Platform are filled in.
	Thermal thermalctl.Config

	Events        eventlog.Logger
	Publisher     *statedb.Publisher
	Metrics       *metrics.Collectors
	Subscriptions *subscription.Manager

	// RebootCause is consulted once on Start.
	RebootCause *rebootcause.Determiner

	// Store keeps transceiver presence across restarts.
	Store *persistence.StateStore

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	setDefault := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	setDefault(&c.FanInterval, DefaultFanInterval)
	setDefault(&c.PSUInterval, DefaultPSUInterval)
	setDefault(&c.ThermalInterval, DefaultThermalInterval)
	setDefault(&c.DOMInterval, DefaultDOMInterval)
	setDefault(&c.SystemInterval, DefaultSystemInterval)
	setDefault(&c.NotifyInterval, DefaultNotifyInterval)
	setDefault(&c.ChangeTimeout, DefaultChangeTimeout)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor keeps the inventory of one chassis current.
type Monitor struct {
	cfg     Config
	chassis platform.Chassis
	inv     *inventory.Inventory
	policy  *thermalctl.Controller
	events  eventlog.Logger
	sink    *sink
	logger  *slog.Logger

	pubMu sync.Mutex

	mu      sync.Mutex
	errs    map[string]string
	reboot  *rebootcause.Result
	sched   *gocron.Scheduler
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds the inventory of ch. Nothing is read until Start or Poll.
func New(ch platform.Chassis, cfg Config) (*Monitor, error) {
	cfg.applyDefaults()
	inv, err := inventory.Build(ch, cfg.Platform, cfg.HwSKU)
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory: %w", err)
	}

	loggers := []eventlog.Logger{cfg.Events}
	if cfg.Metrics != nil {
		loggers = append(loggers, cfg.Metrics)
	}
	m := &Monitor{
		cfg:     cfg,
		chassis: ch,
		inv:     inv,
		events:  eventlog.NewMultiLogger(loggers...),
		logger:  cfg.Logger,
		errs:    make(map[string]string),
	}

	tcfg := cfg.Thermal
	tcfg.Events = m.events
	tcfg.Platform = cfg.Platform
	if tcfg.Logger == nil {
		tcfg.Logger = cfg.Logger
	}
	m.policy = thermalctl.New(tcfg)
	m.sink = newSink(m)
	return m, nil
}

// Inventory returns the monitored inventory.
func (m *Monitor) Inventory() *inventory.Inventory {
	return m.inv
}

// Chassis returns the monitored chassis.
func (m *Monitor) Chassis() platform.Chassis {
	return m.chassis
}

// Policy returns the thermal policy controller.
func (m *Monitor) Policy() *thermalctl.Controller {
	return m.policy
}

// RebootCause returns the cause determined on Start, or nil.
func (m *Monitor) RebootCause() *rebootcause.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reboot
}

// Start reads the whole inventory, determines the reboot cause, publishes
// the initial state and starts the refresh jobs and the change-event loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.running = true
	m.mu.Unlock()

	m.report("startup", m.inv.Refresh(ctx))
	m.determineRebootCause(ctx)
	m.reportOfflineChanges()

	m.sink.prime(m.inv.Inventory)
	m.sink.attach(m.inv.Inventory)
	if m.cfg.Subscriptions != nil {
		m.cfg.Subscriptions.Attach(m.inv.Inventory)
	}

	if p := m.cfg.Publisher; p != nil {
		if err := p.Clear(); err != nil {
			m.logger.Warn("failed to clear state database", slog.Any("error", err))
		}
		m.publishAll()
	}
	m.applyPolicy(ctx)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Observe(m.inv)
	}
	m.savePresence()

	runCtx, cancel := context.WithCancel(ctx)
	sched, err := m.schedule(runCtx)
	if err != nil {
		cancel()
		return err
	}
	done := make(chan struct{})

	m.mu.Lock()
	m.sched, m.cancel, m.done = sched, cancel, done
	m.mu.Unlock()

	sched.StartAsync()
	go func() {
		defer close(done)
		m.watchTransceivers(runCtx)
	}()

	m.logger.Info("monitor started",
		slog.String("platform", m.cfg.Platform),
		slog.Int("components", m.inv.Len()))
	return nil
}

// Stop stops the jobs and the change-event loop and persists presence.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	sched, cancel, done := m.sched, m.cancel, m.done
	m.running = false
	m.sched, m.cancel, m.done = nil, nil, nil
	m.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.sink.detach(m.inv.Inventory)
	if m.cfg.Subscriptions != nil {
		m.cfg.Subscriptions.Detach(m.inv.Inventory)
	}
	m.savePresence()
	m.logger.Info("monitor stopped")
}

// Run starts the monitor and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

// schedule registers one singleton job per refresh group.
func (m *Monitor) schedule(ctx context.Context) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{groupFans, m.cfg.FanInterval, m.PollFans},
		{groupPSUs, m.cfg.PSUInterval, m.PollPSUs},
		{groupThermals, m.cfg.ThermalInterval, m.PollThermals},
		{groupDOM, m.cfg.DOMInterval, m.PollDOM},
		{groupSystem, m.cfg.SystemInterval, m.PollSystem},
	}
	for _, j := range jobs {
		fn := j.fn
		if _, err := s.Every(j.interval).WaitForSchedule().Tag(j.name).Do(func() {
			if ctx.Err() == nil {
				fn(ctx)
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule %s job: %w", j.name, err)
		}
	}
	if subs := m.cfg.Subscriptions; subs != nil {
		if _, err := s.Every(m.cfg.NotifyInterval).Tag(groupNotify).Do(subs.ProcessNotifications); err != nil {
			return nil, fmt.Errorf("failed to schedule %s job: %w", groupNotify, err)
		}
	}
	return s, nil
}

// PollFans refreshes fan drawers and fans.
func (m *Monitor) PollFans(ctx context.Context) {
	m.report(groupFans, m.inv.RefreshFans(ctx))
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObserveFans(m.inv.Fans)
	}
	m.publish()
}

// PollPSUs refreshes power supplies.
func (m *Monitor) PollPSUs(ctx context.Context) {
	m.report(groupPSUs, m.inv.RefreshPSUs(ctx))
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObservePSUs(m.inv.PSUs)
	}
	m.publish()
}

// PollThermals refreshes temperatures and applies the fan policy.
func (m *Monitor) PollThermals(ctx context.Context) {
	m.report(groupThermals, m.inv.RefreshThermals(ctx))
	m.applyPolicy(ctx)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObserveThermals(m.inv.Thermals)
	}
	m.publish()
}

// PollDOM re-reads present transceivers.
func (m *Monitor) PollDOM(ctx context.Context) {
	m.report(groupDOM, m.inv.RefreshDOM(ctx))
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObserveTransceivers(m.inv.Transceivers)
	}
	m.publish()
}

// PollSystem refreshes the status LED, firmware versions and the watchdog.
func (m *Monitor) PollSystem(ctx context.Context) {
	m.report(groupSystem, m.inv.RefreshSystem(ctx))
	m.publish()
}

// Poll runs every refresh group once.
func (m *Monitor) Poll(ctx context.Context) {
	m.PollFans(ctx)
	m.PollPSUs(ctx)
	m.PollThermals(ctx)
	m.PollDOM(ctx)
	m.PollSystem(ctx)
}

func (m *Monitor) applyPolicy(ctx context.Context) {
	if _, err := m.policy.Run(ctx, m.inv.Fans, m.inv.Thermals); err != nil {
		m.report("thermal policy", err)
	}
	if m.cfg.Metrics != nil {
		if speed := m.policy.Applied(); speed >= 0 {
			m.cfg.Metrics.ObserveFanPolicy(speed)
		}
	}
}

// watchTransceivers waits for change events until ctx is done.
func (m *Monitor) watchTransceivers(ctx context.Context) {
	if len(m.inv.Transceivers) == 0 {
		return
	}
	for {
		cs, err := m.chassis.ChangeEvents(ctx, m.cfg.ChangeTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.report("change events", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.ChangeTimeout):
			}
			continue
		}
		if len(cs) > 0 {
			m.HandleChanges(ctx, cs)
		}
	}
}

// HandleChanges applies transceiver change events: modules are read on
// insertion and cleared on removal. Read errors become error events.
func (m *Monitor) HandleChanges(ctx context.Context, cs platform.ChangeSet) {
	ports := make([]int, 0, len(cs))
	for port := range cs {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	for _, port := range ports {
		x := m.inv.Transceiver(port)
		if x == nil {
			m.logger.Warn("change event for unknown port", slog.Int("port", port))
			continue
		}
		switch kind := cs[port]; kind {
		case platform.EventInserted, platform.EventRemoved:
			if err := x.SetPresence(ctx, kind == platform.EventInserted); err != nil {
				m.logger.Warn("failed to read transceiver",
					slog.String("transceiver", x.Name()), slog.Any("error", err))
			}
		default:
			ev := eventlog.NewEvent(eventlog.KindError, model.ComponentTransceiver, x.Name())
			ev.Severity = eventlog.SeverityWarning
			ev.Error = &eventlog.ErrorEventData{
				Message: "presence read failed",
				Context: "port " + strconv.Itoa(port),
			}
			m.emit(ev)
		}
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObserveTransceivers(m.inv.Transceivers)
	}
	m.publish()
	m.savePresence()
}

func (m *Monitor) emit(ev eventlog.Event) {
	ev.Platform = m.cfg.Platform
	m.events.Log(ev)
}

// report logs err once per distinct message and group and emits an error
// event for it. A nil err clears the group.
func (m *Monitor) report(group string, err error) {
	m.mu.Lock()
	prev, had := m.errs[group]
	if err == nil {
		delete(m.errs, group)
		m.mu.Unlock()
		if had {
			m.logger.Info("hardware access recovered", slog.String("group", group))
		}
		return
	}
	msg := err.Error()
	m.errs[group] = msg
	m.mu.Unlock()
	if had && prev == msg {
		return
	}

	m.logger.Warn("hardware access failed", slog.String("group", group), slog.Any("error", err))
	ev := eventlog.NewEvent(eventlog.KindError, model.ComponentChassis, m.inv.Chassis.Name())
	ev.Severity = eventlog.SeverityWarning
	ev.Error = &eventlog.ErrorEventData{Message: msg, Context: group}
	m.emit(ev)
}

// publish writes changed components to STATE_DB, or everything after the
// connection came back or the server lost its entries.
func (m *Monitor) publish() {
	p := m.cfg.Publisher
	if p == nil {
		return
	}
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	if !p.Ready() {
		return
	}
	if p.Resync() {
		m.publishAllLocked()
		return
	}
	for _, c := range m.inv.Components() {
		if len(c.GetDirtyAttributes()) == 0 {
			continue
		}
		if err := p.PublishComponent(m.inv, c); err != nil {
			if errors.Is(err, statedb.ErrUnavailable) {
				return
			}
			m.logger.Debug("publish failed", slog.String("component", c.Key()), slog.Any("error", err))
			continue
		}
		c.ClearDirtyAttributes()
	}
}

func (m *Monitor) publishAll() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.publishAllLocked()
}

func (m *Monitor) publishAllLocked() {
	p := m.cfg.Publisher
	if err := p.PublishAll(m.inv); err != nil {
		m.logger.Warn("failed to publish inventory", slog.Any("error", err))
		return
	}
	if m.cfg.RebootCause != nil {
		history, err := m.cfg.RebootCause.History()
		if err != nil {
			m.logger.Warn("failed to read reboot-cause history", slog.Any("error", err))
		}
		for _, rec := range history {
			if err := p.PublishRebootCause(rec); err != nil {
				m.logger.Warn("failed to publish reboot cause", slog.Any("error", err))
				break
			}
		}
	}
	for _, c := range m.inv.Components() {
		c.ClearDirtyAttributes()
	}
}

func (m *Monitor) determineRebootCause(ctx context.Context) {
	d := m.cfg.RebootCause
	if d == nil {
		return
	}
	res, err := d.Determine(ctx)
	if err != nil {
		m.logger.Warn("reboot cause", slog.Any("error", err))
	}
	if res == nil {
		return
	}
	m.mu.Lock()
	m.reboot = res
	m.mu.Unlock()

	if err := m.inv.Chassis.SetRebootCause(res.RebootCause); err != nil {
		m.logger.Warn("failed to set reboot cause", slog.Any("error", err))
	}
	if !res.Recorded {
		return
	}
	m.logger.Info("previous reboot", slog.String("cause", res.Cause), slog.Bool("hardware", res.Hardware))
	ev := eventlog.NewEvent(eventlog.KindRebootCause, model.ComponentChassis, m.inv.Chassis.Name())
	if res.Hardware {
		ev.Severity = eventlog.SeverityWarning
	}
	ev.RebootCause = &eventlog.RebootCauseEvent{Cause: res.Cause, Detail: res.Detail, Hardware: res.Hardware}
	m.emit(ev)
}

// presence returns the current transceiver presence as a bitmap.
func (m *Monitor) presence() xcvr.Bitmap {
	b := xcvr.NewBitmap(len(m.inv.Transceivers))
	for _, x := range m.inv.Transceivers {
		b.Put(x.Port(), x.Present())
	}
	return b
}

// reportOfflineChanges emits presence events for modules inserted or
// removed while pmond was not running.
func (m *Monitor) reportOfflineChanges() {
	if m.cfg.Store == nil || len(m.inv.Transceivers) == 0 {
		return
	}
	state, err := m.cfg.Store.LoadFor(m.cfg.Platform)
	if err != nil || len(state.Presence) == 0 {
		return
	}
	old := xcvr.Bitmap(state.Presence)
	for _, x := range m.inv.Transceivers {
		if old.Test(x.Port()) == x.Present() {
			continue
		}
		ev := eventlog.NewEvent(eventlog.KindPresence, model.ComponentTransceiver, x.Name())
		ev.Presence = &eventlog.PresenceEvent{Present: x.Present(), Port: x.Port()}
		m.emit(ev)
	}
}

func (m *Monitor) savePresence() {
	if m.cfg.Store == nil || len(m.inv.Transceivers) == 0 {
		return
	}
	b := m.presence()
	err := m.cfg.Store.Update(m.cfg.Platform, func(s *persistence.PlatformState) {
		s.Presence = []uint64(b)
	})
	if err != nil {
		m.logger.Warn("failed to save transceiver presence", slog.Any("error", err))
	}
}

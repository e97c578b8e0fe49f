package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-redis/redis"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/discovery"
	"github.com/netplatform/pmon-go/pkg/firmware"
	"github.com/netplatform/pmon-go/pkg/generic"
	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/metrics"
	"github.com/netplatform/pmon-go/pkg/monitor"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/statedb"
	"github.com/netplatform/pmon-go/pkg/subscription"
	"github.com/netplatform/pmon-go/pkg/sysfs"
	"github.com/netplatform/pmon-go/pkg/sysinfo"
	"github.com/netplatform/pmon-go/pkg/thermalctl"
)

// daemon wires the monitor of one chassis to its sinks and the API.
type daemon struct {
	cfg    *Config
	host   *sysinfo.Info
	logger *slog.Logger

	chassis  *generic.Chassis
	monitor  *monitor.Monitor
	server   *api.Server
	redis    *redis.Client
	eventLog *eventlog.FileLogger
	adv      *discovery.Advertiser
}

// newDaemon builds everything without touching hardware beyond loading
// the descriptor.
func newDaemon(ctx context.Context, cfg *Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger}

	host, err := sysinfo.Read(ctx, sysinfo.Paths{MachineConf: cfg.MachineConf, VersionFile: cfg.VersionFile})
	if err != nil {
		logger.Warn("incomplete host information", slog.Any("error", err))
	}
	d.host = host
	plat := cfg.Platform
	if plat == "" {
		plat = host.Platform
	}
	if plat == "" {
		return nil, errors.New("platform unknown: set platform or provide machine.conf")
	}

	descs, err := descriptor.NewManager(cfg.Descriptors)
	if err != nil {
		return nil, err
	}
	desc, err := descs.Get(plat)
	if err != nil {
		return nil, fmt.Errorf("%w (known: %v)", err, descs.List())
	}
	hwsku := cfg.HwSKU
	if hwsku == "" {
		hwsku = desc.HwSKU
	}

	fetcher := firmware.NewFetcher(cfg.FirmwareDir)
	fetcher.Logger = logger
	d.chassis, err = generic.NewChassis(desc, generic.Options{
		FS:           sysfs.New(cfg.SysfsRoot),
		Images:       fetcher,
		PollInterval: cfg.Xcvr.PollInterval,
		Debounce:     cfg.Xcvr.Debounce,
		ReportErrors: cfg.Xcvr.ReportErrors,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build chassis: %w", err)
	}

	subs := subscription.NewManager()
	hub := api.NewHub(subs, logger)
	sinks := []eventlog.Logger{hub, eventlog.NewSlogAdapter(logger)}

	if cfg.EventLog.Path != "" {
		d.eventLog, err = eventlog.NewRotatingFileLogger(cfg.EventLog.Path, cfg.EventLog.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		sinks = append(sinks, d.eventLog)
	}

	var collectors *metrics.Collectors
	if cfg.Metrics {
		collectors = metrics.New()
		sinks = append(sinks, collectors)
	}
	events := eventlog.NewMultiLogger(sinks...)

	var publisher *statedb.Publisher
	if cfg.Redis.Enabled {
		d.redis, err = statedb.Connect(statedb.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			// The publisher reconnects on its own.
			logger.Warn("state database not reachable", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
		}
		publisher = statedb.NewPublisher(d.redis,
			statedb.WithLogger(logger),
			statedb.WithBackoff(connection.NewBackoff()))
	}

	store := persistence.NewStateStore(cfg.StateFile)
	determiner := &rebootcause.Determiner{
		Hardware:  d.chassis,
		CauseFile: cfg.RebootCauseFile,
		Store:     store,
		Platform:  plat,
		Limit:     cfg.RebootHistory,
		Logger:    logger,
	}

	thermal := thermalctl.Config{
		OnCritical: func(sensor string, temp, limit float64) {
			logger.Error("critical temperature",
				slog.String("sensor", sensor),
				slog.Float64("temperature", temp),
				slog.Float64("limit", limit))
		},
		Logger: logger,
	}
	if p := desc.ThermalPolicy; p != nil {
		thermal.DefaultSpeed, thermal.MaxSpeed = p.DefaultSpeed, p.MaxSpeed
	}

	d.monitor, err = monitor.New(d.chassis, monitor.Config{
		Platform:        plat,
		HwSKU:           hwsku,
		FanInterval:     cfg.Intervals.Fan,
		PSUInterval:     cfg.Intervals.PSU,
		ThermalInterval: cfg.Intervals.Thermal,
		DOMInterval:     cfg.Intervals.DOM,
		SystemInterval:  cfg.Intervals.System,
		NotifyInterval:  cfg.Intervals.Notify,
		Thermal:         thermal,
		Events:          events,
		Publisher:       publisher,
		Metrics:         collectors,
		Subscriptions:   subs,
		RebootCause:     determiner,
		Store:           store,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	d.server = api.NewServer(api.Config{
		Version:       host.BuildVersion,
		Monitor:       d.monitor,
		Metrics:       collectors,
		Subscriptions: subs,
		Publisher:     publisher,
		RebootCause:   determiner,
		Hub:           hub,
		Logger:        logger,
	})

	if cfg.Discovery.Advertise {
		acfg := discovery.DefaultAdvertiserConfig()
		acfg.Interface = cfg.Discovery.Interface
		acfg.Logger = logger
		d.adv = discovery.NewAdvertiser(acfg)
	}
	return d, nil
}

// run starts the monitor and serves the API until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	defer d.close()

	if err := d.monitor.Start(ctx); err != nil {
		return err
	}
	defer d.monitor.Stop()

	if d.cfg.Watchdog.Arm > 0 {
		if err := d.armWatchdog(ctx); err != nil {
			d.logger.Warn("watchdog not armed", slog.Any("error", err))
		}
	}

	if d.adv != nil {
		if err := d.adv.Advertise(d.advertisement()); err != nil {
			d.logger.Warn("mDNS advertisement failed", slog.Any("error", err))
		} else {
			defer d.adv.Stop()
		}
	}

	return d.server.Serve(ctx, d.cfg.Listen)
}

// armWatchdog arms the chassis watchdog and refreshes it until ctx is
// done. The watchdog stays armed on exit so that a hung shutdown reboots.
func (d *daemon) armWatchdog(ctx context.Context) error {
	wd := d.chassis.Watchdog()
	if wd == nil {
		return platform.ErrNotSupported
	}
	armed, err := wd.Arm(d.cfg.Watchdog.Arm)
	if err != nil {
		return err
	}
	interval := d.cfg.keepaliveInterval(armed)
	d.logger.Info("watchdog armed", slog.Int("timeout", armed), slog.Duration("keepalive", interval))

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := wd.Arm(armed); err != nil {
					d.logger.Error("watchdog keepalive failed", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

func (d *daemon) advertisement() discovery.Info {
	info := discovery.Info{
		Instance: d.cfg.Discovery.Instance,
		Platform: d.monitor.Inventory().Platform(),
		HwSKU:    d.monitor.Inventory().HwSKU(),
		Serial:   d.monitor.Inventory().Chassis.Serial(),
		Version:  d.host.BuildVersion,
	}
	if _, port, err := net.SplitHostPort(d.cfg.Listen); err == nil {
		if p, err := strconv.ParseUint(port, 10, 16); err == nil {
			info.Port = uint16(p)
		}
	}
	return info
}

func (d *daemon) close() {
	if d.eventLog != nil {
		if err := d.eventLog.Close(); err != nil {
			d.logger.Warn("failed to close event log", slog.Any("error", err))
		}
	}
	if d.redis != nil {
		d.redis.Close()
	}
}

// Command dhcp-relay-mgr keeps the DHCP relay programs of a switch in sync
// with CONFIG_DB.
//
// It watches the VLAN, interface and DHCP_RELAY tables, renders one
// dhcrelay program per IPv4 VLAN plus the dhcp6relay program into a
// supervisord configuration, and restarts the relay unit over D-Bus
// whenever that configuration changes.
//
// Usage:
//
//	dhcp-relay-mgr [flags]
//
// Flags:
//
//	-redis string       CONFIG_DB address (default "127.0.0.1:6379")
//	-output string      Supervisor config to write
//	-unit string        systemd unit to restart (default "dhcp_relay.service")
//	-once               Render once to stdout and exit
//	-log-level string   Log level: debug, info, warn, error (default "info")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netplatform/pmon-go/pkg/connection"
	"github.com/netplatform/pmon-go/pkg/dbmon"
	"github.com/netplatform/pmon-go/pkg/dhcprelay"
	"github.com/netplatform/pmon-go/pkg/hostsvc"
	"github.com/netplatform/pmon-go/pkg/statedb"
)

// Config holds the command line configuration.
type Config struct {
	Redis          string
	Output         string
	Unit           string
	Settle         time.Duration
	Resync         time.Duration
	RestartTimeout time.Duration
	Once           bool
	LogLevel       string
}

var config Config

func init() {
	flag.StringVar(&config.Redis, "redis", statedb.DefaultAddr, "CONFIG_DB address")
	flag.StringVar(&config.Output, "output", "/etc/supervisor/conf.d/dhcp-relay.programs.conf", "Supervisor config to write")
	flag.StringVar(&config.Unit, "unit", "dhcp_relay.service", "systemd unit to restart")
	flag.DurationVar(&config.Settle, "settle", dbmon.DefaultSettle, "Delay after a change before regenerating")
	flag.DurationVar(&config.Resync, "resync", dbmon.DefaultResync, "Full reload interval")
	flag.DurationVar(&config.RestartTimeout, "restart-timeout", 30*time.Second, "Time to wait for the unit to become active")
	flag.BoolVar(&config.Once, "once", false, "Render once to stdout and exit")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	logger := setupLogging(config.LogLevel)

	client, err := dbmon.Connect(config.Redis)
	if err != nil {
		// Run keeps retrying; only -once needs the database now.
		logger.Warn("CONFIG_DB not reachable", slog.String("addr", config.Redis), slog.Any("error", err))
	}
	defer client.Close()

	checker := &dbmon.Checker{
		Client:  client,
		Watcher: dbmon.RedisWatcher{Client: client},
		Tables:  dhcprelay.Tables,
		DB:      statedb.ConfigDB,
		Settle:  config.Settle,
		Resync:  config.Resync,
		Backoff: connection.NewBackoff(),
		Logger:  logger,
	}

	if config.Once {
		if err := renderOnce(checker); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	systemd, err := hostsvc.NewSystemd()
	if err != nil {
		logger.Error("failed to connect to systemd", slog.Any("error", err))
		os.Exit(1)
	}

	m := &manager{
		output:         config.Output,
		unit:           config.Unit,
		systemd:        systemd,
		restartTimeout: config.RestartTimeout,
		pollInterval:   500 * time.Millisecond,
		logger:         logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching CONFIG_DB", slog.String("addr", config.Redis), slog.Any("tables", dhcprelay.Tables))
	if err := checker.Run(ctx, m.handle); err != nil && ctx.Err() == nil {
		logger.Error("stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func renderOnce(checker *dbmon.Checker) error {
	snap, err := checker.Load()
	if err != nil {
		return err
	}
	cfg, err := dhcprelay.FromSnapshot(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	data, err := dhcprelay.Generate(cfg).Supervisor()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func setupLogging(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

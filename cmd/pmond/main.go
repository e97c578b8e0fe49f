// Command pmond is the platform monitor daemon.
//
// It loads the platform descriptor matching the switch, keeps the
// inventory of fans, PSUs, thermals, transceivers and firmware components
// current, drives the fans according to the thermal policy and publishes
// the state to STATE_DB, the event log, Prometheus and the HTTP API.
//
// Usage:
//
//	pmond [flags]
//
// Flags:
//
//	-config string      Configuration file (YAML)
//	-listen string      API listen address (default "127.0.0.1:8787")
//	-platform string    Platform name, overrides machine.conf
//	-descriptors string Platform descriptor directory
//	-event-log string   Event log file, empty to disable
//	-log-level string   Log level: debug, info, warn, error (default "info")
//
// Every setting can also be given in the configuration file or as an
// environment variable, e.g. PMOND_REDIS_ADDR or PMOND_WATCHDOG_ARM.
//
// Examples:
//
//	# Run with the platform from /host/machine.conf
//	pmond -config /etc/pmon/pmond.yaml
//
//	# Run against a fake sysfs tree without STATE_DB
//	PMOND_SYSFS_ROOT=/tmp/fake PMOND_REDIS_ENABLED=false pmond -platform x86_64-acme_ds2000-r0
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var (
	configFile string
	flagValues = map[string]*string{}
	flagKeys   = map[string]string{}
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file (YAML)")
	stringFlag("listen", "listen", "API listen address (default \"127.0.0.1:8787\")")
	stringFlag("platform", "platform", "Platform name, overrides machine.conf")
	stringFlag("descriptors", "descriptors", "Platform descriptor directory")
	stringFlag("event-log", "event_log.path", "Event log file, empty to disable")
	stringFlag("log-level", "log_level", "Log level: debug, info, warn, error")
}

// stringFlag registers a flag that overrides the config key when set.
func stringFlag(name, key, usage string) {
	flagValues[name] = flag.String(name, "", usage)
	flagKeys[name] = key
}

// overrides returns the config keys of the flags given on the command line.
func overrides() map[string]any {
	out := make(map[string]any)
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = *flagValues[f.Name]
		}
	})
	return out
}

func main() {
	flag.Parse()

	cfg, err := LoadConfig(configFile, overrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("pmond starting",
		slog.String("platform", d.monitor.Inventory().Platform()),
		slog.String("listen", cfg.Listen))
	if err := d.run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("pmond stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("pmond stopped")
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
	opts := &slog.HandlerOptions{Level: l, AddSource: l == slog.LevelDebug}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)
	return logger
}

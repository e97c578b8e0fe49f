package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/monitor"
	"github.com/netplatform/pmon-go/pkg/statedb"
)

// EnvPrefix prefixes environment overrides, e.g. PMOND_REDIS_ADDR.
const EnvPrefix = "PMOND"

// Config is the daemon configuration.
type Config struct {
	// Listen defaults to loopback; the API has no authentication.
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	// Platform overrides onie_platform from machine.conf.
	Platform    string `mapstructure:"platform"`
	HwSKU       string `mapstructure:"hwsku"`
	Descriptors string `mapstructure:"descriptors"`
	SysfsRoot   string `mapstructure:"sysfs_root"`
	MachineConf string `mapstructure:"machine_conf"`
	VersionFile string `mapstructure:"version_file"`

	Redis     RedisConfig     `mapstructure:"redis"`
	EventLog  EventLogConfig  `mapstructure:"event_log"`
	Intervals IntervalsConfig `mapstructure:"intervals"`
	Xcvr      XcvrConfig      `mapstructure:"xcvr"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`

	StateFile       string `mapstructure:"state_file"`
	RebootCauseFile string `mapstructure:"reboot_cause_file"`
	RebootHistory   int    `mapstructure:"reboot_history"`
	FirmwareDir     string `mapstructure:"firmware_dir"`
	Metrics         bool   `mapstructure:"metrics"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EventLogConfig struct {
	// Path is empty to disable the event log.
	Path    string `mapstructure:"path"`
	MaxSize int64  `mapstructure:"max_size"`
}

type IntervalsConfig struct {
	Fan     time.Duration `mapstructure:"fan"`
	PSU     time.Duration `mapstructure:"psu"`
	Thermal time.Duration `mapstructure:"thermal"`
	DOM     time.Duration `mapstructure:"dom"`
	System  time.Duration `mapstructure:"system"`
	Notify  time.Duration `mapstructure:"notify"`
}

type XcvrConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debounce     int           `mapstructure:"debounce"`
	// ReportErrors turns presence read failures into transceiver error
	// events instead of log warnings.
	ReportErrors bool          `mapstructure:"report_errors"`
}

type WatchdogConfig struct {
	// Arm is the timeout armed at start in seconds; 0 leaves the watchdog
	// alone.
	Arm       int           `mapstructure:"arm"`
	Keepalive time.Duration `mapstructure:"keepalive"`
}

type DiscoveryConfig struct {
	Advertise bool   `mapstructure:"advertise"`
	Interface string `mapstructure:"interface"`
	Instance  string `mapstructure:"instance"`
}

var defaults = map[string]any{
	"listen":              fmt.Sprintf("127.0.0.1:%d", api.DefaultPort),
	"log_level":           "info",
	"descriptors":         "/usr/share/pmon/platforms",
	"sysfs_root":          "",
	"machine_conf":        "",
	"version_file":        "",
	"platform":            "",
	"hwsku":               "",
	"redis.enabled":       true,
	"redis.addr":          statedb.DefaultAddr,
	"redis.password":      "",
	"redis.db":            statedb.StateDB,
	"event_log.path":      "/var/log/pmon/events.plog",
	"event_log.max_size":  int64(8 << 20),
	"intervals.fan":       monitor.DefaultFanInterval,
	"intervals.psu":       monitor.DefaultPSUInterval,
	"intervals.thermal":   monitor.DefaultThermalInterval,
	"intervals.dom":       monitor.DefaultDOMInterval,
	"intervals.system":    monitor.DefaultSystemInterval,
	"intervals.notify":    monitor.DefaultNotifyInterval,
	"xcvr.poll_interval":  time.Second,
	"xcvr.debounce":       0,
	"xcvr.report_errors":  true,
	"watchdog.arm":        0,
	"watchdog.keepalive":  0 * time.Second,
	"discovery.advertise": true,
	"discovery.interface": "",
	"discovery.instance":  "",
	"state_file":          "/var/lib/pmon/state.json",
	"reboot_cause_file":   "",
	"reboot_history":      10,
	"firmware_dir":        "/tmp/pmon-firmware",
	"metrics":             true,
}

// LoadConfig reads path (optional), applies PMOND_ environment overrides
// and then the explicitly set flags in overrides.
func LoadConfig(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Watchdog.Arm < 0 {
		return fmt.Errorf("watchdog.arm must not be negative, got %d", c.Watchdog.Arm)
	}
	if c.Xcvr.Debounce < 0 {
		return fmt.Errorf("xcvr.debounce must not be negative, got %d", c.Xcvr.Debounce)
	}
	if c.RebootHistory <= 0 {
		return fmt.Errorf("reboot_history must be positive, got %d", c.RebootHistory)
	}
	if c.Descriptors == "" {
		return fmt.Errorf("descriptors directory required")
	}
	return nil
}

// keepaliveInterval returns how often an armed watchdog is refreshed: the
// configured interval, else a third of the timeout.
func (c *Config) keepaliveInterval(armed int) time.Duration {
	if c.Watchdog.Keepalive > 0 {
		return c.Watchdog.Keepalive
	}
	d := time.Duration(armed) * time.Second / 3
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Package sysinfo reads the identity of the host: the ONIE platform string,
// the installed image version and basic kernel facts.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/host"
	"github.com/spf13/viper"
)

// Default locations of the identity files.
const (
	DefaultMachineConf = "/host/machine.conf"
	DefaultVersionFile = "/etc/sonic/sonic_version.yml"
)

// Info describes the host.
type Info struct {
	Platform     string    `json:"platform"`
	Machine      string    `json:"machine,omitempty"`
	BuildVersion string    `json:"build_version,omitempty"`
	ASICType     string    `json:"asic_type,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	Kernel       string    `json:"kernel,omitempty"`
	Arch         string    `json:"arch,omitempty"`
	BootTime     time.Time `json:"boot_time,omitzero"`
}

// Paths overrides the identity file locations. Empty fields use the
// defaults.
type Paths struct {
	MachineConf string
	VersionFile string
}

var hostInfo = host.InfoWithContext

// Read collects everything it can. Failures of individual sources are
// joined into the returned error; the Info is always usable.
func Read(ctx context.Context, paths Paths) (*Info, error) {
	if paths.MachineConf == "" {
		paths.MachineConf = DefaultMachineConf
	}
	if paths.VersionFile == "" {
		paths.VersionFile = DefaultVersionFile
	}

	info := &Info{}
	var errs []error

	if platform, machine, err := ReadMachineConf(paths.MachineConf); err != nil {
		errs = append(errs, err)
	} else {
		info.Platform, info.Machine = platform, machine
	}
	if build, asic, err := ReadVersion(paths.VersionFile); err != nil {
		errs = append(errs, err)
	} else {
		info.BuildVersion, info.ASICType = build, asic
	}

	if h, err := hostInfo(ctx); err != nil {
		errs = append(errs, fmt.Errorf("host info: %w", err))
	} else {
		info.Hostname = h.Hostname
		info.Kernel = h.KernelVersion
		info.Arch = h.KernelArch
		if h.BootTime > 0 {
			info.BootTime = time.Unix(int64(h.BootTime), 0)
		}
	}
	return info, errors.Join(errs...)
}

// ReadMachineConf reads onie_platform and onie_machine from an ONIE
// machine.conf, a key=value file. Older images name the platform key
// aboot_platform.
func ReadMachineConf(path string) (platform, machine string, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	platform = v.GetString("onie_platform")
	if platform == "" {
		platform = v.GetString("aboot_platform")
	}
	if platform == "" {
		return "", "", fmt.Errorf("%s: no onie_platform", path)
	}
	return platform, v.GetString("onie_machine"), nil
}

// ReadVersion reads build_version and asic_type from sonic_version.yml.
func ReadVersion(path string) (build, asic string, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return v.GetString("build_version"), v.GetString("asic_type"), nil
}

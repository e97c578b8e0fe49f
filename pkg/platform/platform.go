package platform

import (
	"context"
	"time"

	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/sff"
)

// Device is the common contract of every field replaceable unit.
type Device interface {
	// Name is the stable display name, e.g. "PSU 1" or "Ethernet0".
	Name() string

	Presence(ctx context.Context) (bool, error)
	Model(ctx context.Context) (string, error)
	Serial(ctx context.Context) (string, error)
	Status(ctx context.Context) (Status, error)
}

// LED is a status indicator.
type LED interface {
	Color(ctx context.Context) (Color, error)
	SetColor(ctx context.Context, c Color) error
}

// Fan is a single rotor or fan module.
type Fan interface {
	Device

	Direction(ctx context.Context) (FanDirection, error)

	// SpeedPercent is the measured speed as a percentage of the maximum.
	SpeedPercent(ctx context.Context) (int, error)

	// TargetSpeedPercent is the speed last requested.
	TargetSpeedPercent(ctx context.Context) (int, error)

	// SpeedTolerance is the allowed deviation from the target, in percent.
	SpeedTolerance(ctx context.Context) (int, error)

	SetSpeedPercent(ctx context.Context, percent int) error

	// LED may be nil.
	LED() LED
}

// FanDrawer groups fans that are replaced together.
type FanDrawer interface {
	Device
	Fans() []Fan
	LED() LED
}

// PSU is a power supply unit.
type PSU interface {
	Device

	Voltage(ctx context.Context) (float64, error)
	Current(ctx context.Context) (float64, error)
	Power(ctx context.Context) (float64, error)
	Temperature(ctx context.Context) (float64, error)
	PowerGood(ctx context.Context) (bool, error)

	Fans() []Fan
	LED() LED
}

// Thermal is a temperature sensor.
type Thermal interface {
	Name() string

	Temperature(ctx context.Context) (float64, error)
	HighThreshold(ctx context.Context) (float64, error)
	LowThreshold(ctx context.Context) (float64, error)
	HighCriticalThreshold(ctx context.Context) (float64, error)
}

// Transceiver is a pluggable module cage.
type Transceiver interface {
	Device

	// Port is the front panel port index.
	Port() int

	Reset(ctx context.Context) error
	LowPowerMode(ctx context.Context) (bool, error)
	SetLowPowerMode(ctx context.Context, on bool) error

	// ReadEEPROM reads n bytes at offset off of the given page. Page 0 is
	// the A0h address for SFP modules; page 1 selects A2h.
	ReadEEPROM(ctx context.Context, page, off, n int) ([]byte, error)

	Info(ctx context.Context) (*sff.Info, error)
	DOM(ctx context.Context) (*sff.DOM, error)
}

// Component is a programmable device with firmware, such as a CPLD or BIOS.
type Component interface {
	Name() string
	Description() string
	FirmwareVersion(ctx context.Context) (string, error)

	// InstallFirmware installs the image at path or URL.
	InstallFirmware(ctx context.Context, image string) error
}

// Watchdog is the hardware watchdog.
type Watchdog interface {
	// Arm starts the watchdog, or refreshes it if already running, and
	// returns the timeout actually applied.
	Arm(seconds int) (int, error)
	Disarm() error
	IsArmed() bool

	// Remaining returns the seconds left before expiry, or -1 if disarmed.
	Remaining() (int, error)
}

// ChangeSet maps a port index to the event observed on it.
type ChangeSet map[int]EventKind

// Chassis is the root of the platform.
type Chassis interface {
	Name() string

	SysEEPROM(ctx context.Context) (*onie.Info, error)
	Fans() []Fan
	FanDrawers() []FanDrawer
	PSUs() []PSU
	Thermals() []Thermal
	Transceivers() []Transceiver
	Components() []Component
	StatusLED() LED

	// Watchdog may be nil.
	Watchdog() Watchdog

	// RebootCause returns the hardware reported cause.
	RebootCause(ctx context.Context) (RebootCause, error)

	// ChangeEvents blocks until a transceiver is inserted or removed,
	// timeout elapses or ctx is done. A zero timeout waits indefinitely.
	// Expiry of the timeout returns an empty set and no error.
	ChangeEvents(ctx context.Context, timeout time.Duration) (ChangeSet, error)
}

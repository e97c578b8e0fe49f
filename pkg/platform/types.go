package platform

import (
	"errors"
	"fmt"
	"time"
)

// NotAvailable is the display value for a reading that could not be taken.
const NotAvailable = "N/A"

// Errors shared by all implementations.
var (
	// ErrNotSupported is returned when the hardware does not provide an
	// operation, such as a fan without a tachometer.
	ErrNotSupported = errors.New("not supported on this platform")

	// ErrNotPresent is returned when a pluggable component is absent.
	ErrNotPresent = errors.New("component not present")

	// ErrInvalidArgument is returned for out of range set requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Status is the operational state of a component.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusOK
	StatusNotOK
	StatusNotPresent
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotOK:
		return "Not OK"
	case StatusNotPresent:
		return "Not Present"
	default:
		return NotAvailable
	}
}

// Bool returns true for StatusOK.
func (s Status) Bool() bool {
	return s == StatusOK
}

// FanDirection is the airflow direction of a fan.
type FanDirection uint8

const (
	FanDirectionUnknown FanDirection = iota
	FanDirectionIntake
	FanDirectionExhaust
)

// String returns the airflow name.
func (d FanDirection) String() string {
	switch d {
	case FanDirectionIntake:
		return "intake"
	case FanDirectionExhaust:
		return "exhaust"
	default:
		return NotAvailable
	}
}

// ParseFanDirection parses airflow names used in descriptors and sysfs
// ("intake", "exhaust", "F2B", "B2F").
func ParseFanDirection(s string) (FanDirection, error) {
	switch s {
	case "intake", "INTAKE", "B2F", "b2f", "in":
		return FanDirectionIntake, nil
	case "exhaust", "EXHAUST", "F2B", "f2b", "out":
		return FanDirectionExhaust, nil
	}
	return FanDirectionUnknown, fmt.Errorf("%w: fan direction %q", ErrInvalidArgument, s)
}

// Color is a status LED color.
type Color string

// LED colors.
const (
	ColorOff        Color = "off"
	ColorGreen      Color = "green"
	ColorGreenBlink Color = "green_blink"
	ColorAmber      Color = "amber"
	ColorAmberBlink Color = "amber_blink"
	ColorRed        Color = "red"
	ColorRedBlink   Color = "red_blink"
	ColorBlue       Color = "blue"
	ColorBlueBlink  Color = "blue_blink"
)

// RebootCause explains the last reboot.
type RebootCause struct {
	// Cause is one of the Cause* constants or a free form software reason.
	Cause string `json:"cause"`

	// Detail carries extra information such as the user or the command.
	Detail string `json:"detail,omitempty"`

	// Time is when the cause was determined.
	Time time.Time `json:"time"`
}

// Reboot causes reported by hardware.
const (
	CausePowerLoss            = "Power Loss"
	CauseThermalOverloadCPU   = "Thermal Overload: CPU"
	CauseThermalOverloadASIC  = "Thermal Overload: ASIC"
	CauseThermalOverload      = "Thermal Overload: Other"
	CauseInsufficientFanSpeed = "Insufficient Fan Speed"
	CauseWatchdog             = "Watchdog"
	CauseHardwareOther        = "Hardware - Other"
	CauseNonHardware          = "Non-Hardware"
	CauseUnknown              = "Unknown"
)

// EventKind distinguishes transceiver change events.
type EventKind uint8

const (
	EventRemoved EventKind = iota
	EventInserted
	EventError
)

// String returns the STATE_DB encoding of the event: "0" for removal,
// "1" for insertion and "2" for a read error.
func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "1"
	case EventRemoved:
		return "0"
	default:
		return "2"
	}
}

package log

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/netplatform/pmon-go/pkg/model"
)

// Event is a platform event: a presence or status change, a threshold
// crossing, the reboot cause, a firmware operation or an error.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// ID uniquely identifies the event (UUID).
	ID string `cbor:"1,keyasint"`

	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"2,keyasint"`

	Kind     Kind     `cbor:"3,keyasint"`
	Severity Severity `cbor:"4,keyasint"`

	// ComponentType and Component identify the source, e.g. fan/FAN-1F.
	ComponentType model.ComponentType `cbor:"5,keyasint,omitempty"`
	Component     string              `cbor:"6,keyasint,omitempty"`

	// Platform is the ONIE platform string of the emitting switch.
	Platform string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Presence    *PresenceEvent    `cbor:"10,keyasint,omitempty"`
	Status      *StatusEvent      `cbor:"11,keyasint,omitempty"`
	Threshold   *ThresholdEvent   `cbor:"12,keyasint,omitempty"`
	RebootCause *RebootCauseEvent `cbor:"13,keyasint,omitempty"`
	Firmware    *FirmwareEvent    `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
	Attribute   *AttributeEvent   `cbor:"16,keyasint,omitempty"`
}

// NewEvent returns an event with a fresh ID and the current time.
func NewEvent(kind Kind, t model.ComponentType, component string) Event {
	return Event{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		Kind:          kind,
		Severity:      SeverityInfo,
		ComponentType: t,
		Component:     component,
	}
}

// Source returns "<type>/<name>", or "" for events without a component.
func (e Event) Source() string {
	if e.Component == "" {
		return ""
	}
	return model.Key(e.ComponentType, e.Component)
}

// Kind classifies the event.
type Kind uint8

const (
	KindPresence Kind = iota
	KindStatus
	KindThreshold
	KindRebootCause
	KindFirmware
	KindError
	KindAttribute
)

var kindNames = []string{"PRESENCE", "STATUS", "THRESHOLD", "REBOOT_CAUSE", "FIRMWARE", "ERROR", "ATTRIBUTE"}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// ParseKind parses a kind name, case insensitively.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), true
		}
	}
	return 0, false
}

// Severity ranks events.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// PresenceEvent records an insertion or removal.
type PresenceEvent struct {
	Present bool `cbor:"1,keyasint"`

	// Port is the transceiver port index, -1 for other components.
	Port int `cbor:"2,keyasint"`
}

// StatusEvent records an operational status change.
type StatusEvent struct {
	OldStatus string `cbor:"1,keyasint,omitempty"`
	NewStatus string `cbor:"2,keyasint"`
	Reason    string `cbor:"3,keyasint,omitempty"`
}

// ThresholdEvent records a temperature crossing a threshold, or returning
// below it.
type ThresholdEvent struct {
	// Threshold names the crossed limit: "high", "low" or "critical".
	Threshold string  `cbor:"1,keyasint"`
	Value     float64 `cbor:"2,keyasint"`
	Limit     float64 `cbor:"3,keyasint"`

	// Cleared is set when the value returned inside the limit.
	Cleared bool `cbor:"4,keyasint,omitempty"`

	// FanSpeed is the fan speed applied in response, in percent.
	FanSpeed int `cbor:"5,keyasint,omitempty"`
}

// RebootCauseEvent records the cause of the previous reboot.
type RebootCauseEvent struct {
	Cause  string `cbor:"1,keyasint"`
	Detail string `cbor:"2,keyasint,omitempty"`

	// Hardware is set when the cause was reported by hardware.
	Hardware bool `cbor:"3,keyasint,omitempty"`
}

// FirmwareEvent records a firmware install attempt.
type FirmwareEvent struct {
	Image   string `cbor:"1,keyasint"`
	Version string `cbor:"2,keyasint,omitempty"`
	Success bool   `cbor:"3,keyasint"`
}

// ErrorEventData captures a failed hardware access.
type ErrorEventData struct {
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}

// AttributeEvent captures any other attribute change.
type AttributeEvent struct {
	Name  string `cbor:"1,keyasint"`
	Value any    `cbor:"2,keyasint,omitempty"`
}

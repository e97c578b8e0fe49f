// Package api serves the inventory of a running monitor over HTTP and
// streams attribute changes and platform events over a websocket.
package api

import (
	"time"

	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/subscription"
)

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Platform string `json:"platform"`

	// StateDB is false while the state database is unreachable.
	StateDB bool `json:"state_db"`
}

// ChassisResponse is the response for GET /api/v1/chassis.
type ChassisResponse struct {
	Name     string               `json:"name"`
	Platform string               `json:"platform"`
	HwSKU    string               `json:"hwsku,omitempty"`
	Serial   string               `json:"serial,omitempty"`
	Counts   map[string]int       `json:"counts"`
	Chassis  *model.ComponentInfo `json:"chassis"`

	// FanSpeed is the speed applied by the thermal policy, -1 before the
	// first decision.
	FanSpeed int `json:"fan_speed"`
}

// EEPROMResponse is the response for GET /api/v1/syseeprom.
type EEPROMResponse struct {
	Fields   []onie.Field `json:"fields"`
	CRCValid bool         `json:"crc_valid"`
}

// RebootCauseResponse is the response for GET /api/v1/reboot-cause.
type RebootCauseResponse struct {
	Current *rebootcause.Result        `json:"current,omitempty"`
	History []persistence.RebootRecord `json:"history"`
}

// LPModeRequest is the body of POST /api/v1/transceivers/{port}/lpmode.
type LPModeRequest struct {
	Enable bool `json:"enable"`
}

// CommandResponse is the response of command invocations.
type CommandResponse struct {
	Component string         `json:"component"`
	Command   string         `json:"command"`
	Result    map[string]any `json:"result,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Stream message types.
const (
	MessageNotification = "notification"
	MessageEvent        = "event"
)

// StreamMessage is one message on the event stream.
type StreamMessage struct {
	Type         string                     `json:"type"`
	Notification *subscription.Notification `json:"notification,omitempty"`
	Event        *EventMessage              `json:"event,omitempty"`
}

// EventMessage is the JSON form of a platform event.
type EventMessage struct {
	ID          string                     `json:"id"`
	Timestamp   time.Time                  `json:"timestamp"`
	Kind        string                     `json:"kind"`
	Severity    string                     `json:"severity"`
	Source      string                     `json:"source,omitempty"`
	Platform    string                     `json:"platform,omitempty"`
	Presence    *eventlog.PresenceEvent    `json:"presence,omitempty"`
	Status      *eventlog.StatusEvent      `json:"status,omitempty"`
	Threshold   *eventlog.ThresholdEvent   `json:"threshold,omitempty"`
	RebootCause *eventlog.RebootCauseEvent `json:"reboot_cause,omitempty"`
	Firmware    *eventlog.FirmwareEvent    `json:"firmware,omitempty"`
	Error       *eventlog.ErrorEventData   `json:"error,omitempty"`
	Attribute   *eventlog.AttributeEvent   `json:"attribute,omitempty"`
}

// NewEventMessage converts e.
func NewEventMessage(e eventlog.Event) *EventMessage {
	return &EventMessage{
		ID:          e.ID,
		Timestamp:   e.Timestamp,
		Kind:        e.Kind.String(),
		Severity:    e.Severity.String(),
		Source:      e.Source(),
		Platform:    e.Platform,
		Presence:    e.Presence,
		Status:      e.Status,
		Threshold:   e.Threshold,
		RebootCause: e.RebootCause,
		Firmware:    e.Firmware,
		Error:       e.Error,
		Attribute:   e.Attribute,
	}
}

package model

import (
	"fmt"
	"strings"
)

// ComponentType identifies the kind of a component.
type ComponentType uint8

const (
	ComponentChassis ComponentType = iota + 1
	ComponentFan
	ComponentFanDrawer
	ComponentPSU
	ComponentThermal
	ComponentTransceiver
	ComponentLED
	ComponentFirmware
	ComponentWatchdog
)

var componentTypeNames = map[ComponentType]string{
	ComponentChassis:     "chassis",
	ComponentFan:         "fan",
	ComponentFanDrawer:   "fan_drawer",
	ComponentPSU:         "psu",
	ComponentThermal:     "thermal",
	ComponentTransceiver: "transceiver",
	ComponentLED:         "led",
	ComponentFirmware:    "firmware",
	ComponentWatchdog:    "watchdog",
}

// ComponentTypes lists all component types in display order.
var ComponentTypes = []ComponentType{
	ComponentChassis,
	ComponentFanDrawer,
	ComponentFan,
	ComponentPSU,
	ComponentThermal,
	ComponentTransceiver,
	ComponentLED,
	ComponentFirmware,
	ComponentWatchdog,
}

// String returns the lower case type name used in keys and URLs.
func (t ComponentType) String() string {
	if s, ok := componentTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ParseComponentType parses a type name. Plural forms and dashes are
// accepted ("fans", "fan-drawer").
func ParseComponentType(s string) (ComponentType, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for t, name := range componentTypeNames {
		if s == name || s == name+"s" {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownComponentType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ComponentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ComponentType) UnmarshalText(b []byte) error {
	v, err := ParseComponentType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Package inventory builds the platform inventory model from a
// platform.Chassis.
//
// Each component type has a typed wrapper (Fan, PSU, Thermal, ...) that
// embeds *model.Component, declares the standard attribute set of that type
// and binds it to the platform device it describes. Refresh reads the device
// and updates the attributes; unavailable readings become nil so that the
// presentation edge can render them as "N/A".
//
// Commands that act on hardware (transceiver reset, fan speed, LED color,
// firmware install, watchdog arm) are registered on the components and
// dispatch to the bound device.
package inventory

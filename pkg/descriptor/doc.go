// Package descriptor loads data-driven platform descriptions.
//
// A descriptor is a YAML document naming, for each platform device, the
// source every attribute is read from: a sysfs attribute, an i2c register,
// an ipmitool sensor, a command or a constant. Per-port sources are
// templates expanded for every transceiver cage, so a 32 port switch is
// described once rather than 32 times.
//
// The generic package turns a Descriptor into a platform.Chassis.
package descriptor

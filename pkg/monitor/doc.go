// Package monitor is the core of pmond.
//
// A Monitor builds the inventory of a platform.Chassis and keeps it current:
// gocron jobs refresh fans, PSUs, thermals, transceiver DOM and system
// components at their own intervals, a goroutine waits for transceiver
// change events, and the thermal policy runs after each thermal refresh.
//
// Changes fan out to the platform event log, the STATE_DB publisher, the
// Prometheus collectors and the stream subscription manager. Each sink is
// optional.
package monitor

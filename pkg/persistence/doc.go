// Package persistence provides runtime state persistence for pmond.
//
// This package handles the JSON serialization of state that must survive
// daemon restarts and reboots: the reboot-cause history and the last known
// transceiver presence, so that insertions and removals that happened while
// the daemon was down are reported on start.
package persistence

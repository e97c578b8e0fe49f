// Package generic implements every platform interface from a descriptor.
//
// Attribute values are read through a Reader on every call; nothing is
// cached. A Chassis built by NewChassis owns the fans, PSUs, thermals,
// components and transceiver cages the descriptor names, and detects
// transceiver insertion with an xcvr.Poller over either the per-port
// presence sources or the descriptor's presence registers.
package generic

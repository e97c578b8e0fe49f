// Package xcvr reports transceiver insertion and removal.
//
// Presence of all ports is read as a Bitmap. A Poller keeps the last
// reported bitmap as its baseline; each poll computes baseline XOR current
// and emits one event per set bit: inserted when the port is now present,
// removed otherwise.
package xcvr

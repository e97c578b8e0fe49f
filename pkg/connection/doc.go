// Package connection provides reconnection handling for the Redis
// consumers of pmond and dhcp-relay-mgr.
//
// # Backoff
//
// A lost connection is retried with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Doubling: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Reset to 1s once a session stays up for StableAfter
//
// Each delay is extended by a random jitter of up to 25 percent so that
// several services restarted together do not hit the server in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Loop
//
// Loop runs a session function (connect, subscribe, consume) until its
// context ends, restarting it after each failure.
package connection

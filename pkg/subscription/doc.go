// Package subscription delivers inventory attribute changes to stream
// clients such as the websocket event feed.
//
// # Subscription Parameters
//
// Each subscription has:
//   - a Filter: component type, component name and attribute names
//     (empty fields match everything)
//   - MinInterval: minimum time between notifications (coalescing window)
//   - MaxInterval: maximum time without notification (heartbeat)
//
// # Coalescing Behavior
//
// When several changes occur within MinInterval, only the final value of
// each attribute is sent. The window starts with the first change after
// the previous notification.
//
// # Bounce-Back Suppression
//
// If a value changes and returns to the last notified value within the
// window, nothing is sent for it. A fan speed that flickers between two
// readings does not produce traffic.
//
// # Priming and Heartbeat
//
// A new subscription receives a priming notification with all current
// values. Heartbeats are sent every MaxInterval without changes.
//
// # Lifecycle
//
// Subscriptions belong to one client connection and end with it.
package subscription

package platform

import (
	"fmt"
	"log/slog"
	"strconv"
)

// OrNA formats v, or returns NotAvailable when err is non-nil. The error is
// logged at debug level so that absent sensors do not flood the log.
func OrNA[T any](v T, err error) string {
	if err != nil {
		slog.Debug("platform: reading unavailable", "error", err)
		return NotAvailable
	}
	switch x := any(v).(type) {
	case string:
		if x == "" {
			return NotAvailable
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', 3, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// OrFalse returns v, or false when err is non-nil.
func OrFalse(v bool, err error) bool {
	if err != nil {
		slog.Debug("platform: reading unavailable", "error", err)
		return false
	}
	return v
}

// OrZero returns v, or the zero value when err is non-nil.
func OrZero[T any](v T, err error) T {
	if err != nil {
		slog.Debug("platform: reading unavailable", "error", err)
		var zero T
		return zero
	}
	return v
}

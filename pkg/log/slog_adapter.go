package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes platform events to an slog.Logger.
// Warning and critical events are logged at Warn and Error level, the rest
// at Info.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("id", event.ID),
		slog.String("kind", event.Kind.String()),
	}
	if src := event.Source(); src != "" {
		attrs = append(attrs, slog.String("component", src))
	}

	// Add type-specific attributes
	switch {
	case event.Presence != nil:
		attrs = append(attrs, slog.Bool("present", event.Presence.Present))
		if event.Presence.Port >= 0 {
			attrs = append(attrs, slog.Int("port", event.Presence.Port))
		}
	case event.Status != nil:
		attrs = append(attrs,
			slog.String("old_status", event.Status.OldStatus),
			slog.String("new_status", event.Status.NewStatus),
		)
		if event.Status.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Status.Reason))
		}
	case event.Threshold != nil:
		attrs = append(attrs,
			slog.String("threshold", event.Threshold.Threshold),
			slog.Float64("value", event.Threshold.Value),
			slog.Float64("limit", event.Threshold.Limit),
			slog.Bool("cleared", event.Threshold.Cleared),
		)
		if event.Threshold.FanSpeed > 0 {
			attrs = append(attrs, slog.Int("fan_speed", event.Threshold.FanSpeed))
		}
	case event.RebootCause != nil:
		attrs = append(attrs,
			slog.String("cause", event.RebootCause.Cause),
			slog.Bool("hardware", event.RebootCause.Hardware),
		)
		if event.RebootCause.Detail != "" {
			attrs = append(attrs, slog.String("detail", event.RebootCause.Detail))
		}
	case event.Firmware != nil:
		attrs = append(attrs,
			slog.String("image", event.Firmware.Image),
			slog.Bool("success", event.Firmware.Success),
		)
		if event.Firmware.Version != "" {
			attrs = append(attrs, slog.String("version", event.Firmware.Version))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	case event.Attribute != nil:
		attrs = append(attrs,
			slog.String("attribute", event.Attribute.Name),
			slog.Any("value", event.Attribute.Value),
		)
	}

	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	a.logger.LogAttrs(context.Background(), level, "platform event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)

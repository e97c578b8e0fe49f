// Package commands implements the pmon-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
)

const timeFormat = "2006-01-02T15:04:05.000000Z"

// FilterFlags holds the raw filter flags shared by view, export and filter.
type FilterFlags struct {
	Type        string
	Component   string
	Kind        string
	MinSeverity string
	TimeStart   string
	TimeEnd     string
}

// Build converts the flags into a log.Filter.
func (f FilterFlags) Build() (log.Filter, error) {
	var filter log.Filter

	if f.Type != "" {
		t, err := model.ParseComponentType(f.Type)
		if err != nil {
			return filter, err
		}
		filter.ComponentType = &t
	}
	filter.Component = f.Component

	if f.Kind != "" {
		k, ok := log.ParseKind(f.Kind)
		if !ok {
			return filter, fmt.Errorf("invalid kind: %s (must be presence, status, threshold, reboot_cause, firmware, error or attribute)", f.Kind)
		}
		filter.Kind = &k
	}

	if f.MinSeverity != "" {
		s, err := parseSeverity(f.MinSeverity)
		if err != nil {
			return filter, err
		}
		filter.MinSeverity = s
	}

	if f.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, f.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if f.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, f.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// parseSeverity parses a severity string (case-insensitive).
func parseSeverity(s string) (log.Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return log.SeverityInfo, nil
	case "warning", "warn":
		return log.SeverityWarning, nil
	case "critical", "crit":
		return log.SeverityCritical, nil
	default:
		return 0, fmt.Errorf("invalid severity: %s (must be info, warning or critical)", s)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp SEVERITY KIND source
	ts := event.Timestamp.UTC().Format(timeFormat)
	src := event.Source()
	if src == "" {
		src = "-"
	}
	fmt.Fprintf(w, "%s %-8s %s %s\n", ts, event.Severity.String(), event.Kind.String(), src)

	switch {
	case event.Presence != nil:
		state := "removed"
		if event.Presence.Present {
			state = "inserted"
		}
		fmt.Fprintf(w, "  %s", state)
		if event.Presence.Port >= 0 {
			fmt.Fprintf(w, " (port %d)", event.Presence.Port)
		}
		fmt.Fprintln(w)
	case event.Status != nil:
		if event.Status.OldStatus != "" {
			fmt.Fprintf(w, "  %s -> %s\n", event.Status.OldStatus, event.Status.NewStatus)
		} else {
			fmt.Fprintf(w, "  -> %s\n", event.Status.NewStatus)
		}
		if event.Status.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", event.Status.Reason)
		}
	case event.Threshold != nil:
		th := event.Threshold
		if th.Cleared {
			fmt.Fprintf(w, "  %s cleared: %.1f (limit %.1f)\n", th.Threshold, th.Value, th.Limit)
		} else {
			fmt.Fprintf(w, "  %s crossed: %.1f (limit %.1f)\n", th.Threshold, th.Value, th.Limit)
		}
		if th.FanSpeed > 0 {
			fmt.Fprintf(w, "  Fan speed: %d%%\n", th.FanSpeed)
		}
	case event.RebootCause != nil:
		fmt.Fprintf(w, "  Cause: %s\n", event.RebootCause.Cause)
		if event.RebootCause.Detail != "" {
			fmt.Fprintf(w, "  Detail: %s\n", event.RebootCause.Detail)
		}
		if event.RebootCause.Hardware {
			fmt.Fprintln(w, "  Reported by hardware")
		}
	case event.Firmware != nil:
		result := "failed"
		if event.Firmware.Success {
			result = "installed"
		}
		fmt.Fprintf(w, "  %s %s", event.Firmware.Image, result)
		if event.Firmware.Version != "" {
			fmt.Fprintf(w, " (version %s)", event.Firmware.Version)
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	case event.Attribute != nil:
		fmt.Fprintf(w, "  %s = %v\n", event.Attribute.Name, event.Attribute.Value)
	}

	fmt.Fprintln(w) // Blank line between events
}

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}

package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/netplatform/pmon-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByKind     map[log.Kind]int
	EventsBySeverity map[log.Severity]int
	Components       map[string]*ComponentStats
	Platforms        map[string]int
	RebootCauses     []string
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// ComponentStats holds statistics for a single component.
type ComponentStats struct {
	Events    int
	Warnings  int
	Critical  int
	LastEvent time.Time
}

// CollectStats reads the log file and aggregates its events.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByKind:     make(map[log.Kind]int),
		EventsBySeverity: make(map[log.Severity]int),
		Components:       make(map[string]*ComponentStats),
		Platforms:        make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByKind[event.Kind]++
		stats.EventsBySeverity[event.Severity]++
		if event.Platform != "" {
			stats.Platforms[event.Platform]++
		}

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.RebootCause != nil {
			stats.RebootCauses = append(stats.RebootCauses, event.RebootCause.Cause)
		}

		src := event.Source()
		if src == "" {
			continue
		}
		cs, ok := stats.Components[src]
		if !ok {
			cs = &ComponentStats{}
			stats.Components[src] = cs
		}
		cs.Events++
		switch event.Severity {
		case log.SeverityWarning:
			cs.Warnings++
		case log.SeverityCritical:
			cs.Critical++
		}
		if event.Timestamp.After(cs.LastEvent) {
			cs.LastEvent = event.Timestamp
		}
	}
	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Platform Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Kind:")
	for _, k := range []log.Kind{log.KindPresence, log.KindStatus, log.KindThreshold, log.KindRebootCause, log.KindFirmware, log.KindError, log.KindAttribute} {
		if count := stats.EventsByKind[k]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", k.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Severity:")
	for _, s := range []log.Severity{log.SeverityInfo, log.SeverityWarning, log.SeverityCritical} {
		if count := stats.EventsBySeverity[s]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", s.String()+":", count)
		}
	}

	if len(stats.Platforms) > 1 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Platforms: %d\n", len(stats.Platforms))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Components: %d\n", len(stats.Components))
	if len(stats.Components) > 0 {
		// Busiest first
		names := make([]string, 0, len(stats.Components))
		for name := range stats.Components {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			a, b := stats.Components[names[i]], stats.Components[names[j]]
			if a.Events != b.Events {
				return a.Events > b.Events
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			cs := stats.Components[name]
			fmt.Fprintf(w, "  %-28s %d events", name, cs.Events)
			if cs.Warnings > 0 || cs.Critical > 0 {
				fmt.Fprintf(w, " (%d warning, %d critical)", cs.Warnings, cs.Critical)
			}
			fmt.Fprintln(w)
		}
	}

	if len(stats.RebootCauses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reboot Causes:")
		for _, c := range stats.RebootCauses {
			fmt.Fprintf(w, "  %s\n", c)
		}
	}
}

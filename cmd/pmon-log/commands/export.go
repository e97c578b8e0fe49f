package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string, filter log.Filter) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// exportJSONL writes one event per line in the form served on the live
// event stream.
func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(api.NewEventMessage(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "id", "severity", "kind", "type", "component", "platform", "summary"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		typ := ""
		if event.Component != "" {
			typ = event.ComponentType.String()
		}
		row := []string{
			event.Timestamp.UTC().Format(timeFormat),
			event.ID,
			event.Severity.String(),
			event.Kind.String(),
			typ,
			event.Component,
			event.Platform,
			summary(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}

// summary returns a one-line description of the event payload.
func summary(event log.Event) string {
	switch {
	case event.Presence != nil:
		if event.Presence.Present {
			return "inserted"
		}
		return "removed"
	case event.Status != nil:
		return event.Status.OldStatus + "->" + event.Status.NewStatus
	case event.Threshold != nil:
		s := event.Threshold.Threshold + "=" + strconv.FormatFloat(event.Threshold.Value, 'f', 1, 64)
		if event.Threshold.Cleared {
			s += " cleared"
		}
		return s
	case event.RebootCause != nil:
		return event.RebootCause.Cause
	case event.Firmware != nil:
		return event.Firmware.Image + " success=" + strconv.FormatBool(event.Firmware.Success)
	case event.Error != nil:
		return event.Error.Message
	case event.Attribute != nil:
		return fmt.Sprintf("%s=%v", event.Attribute.Name, event.Attribute.Value)
	}
	return ""
}

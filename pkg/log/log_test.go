package log

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/netplatform/pmon-go/pkg/model"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func presence(name string, port int, present bool) Event {
	e := NewEvent(KindPresence, model.ComponentTransceiver, name)
	e.Presence = &PresenceEvent{Present: present, Port: port}
	return e
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(KindStatus, model.ComponentFan, "FAN-1F")
	b := NewEvent(KindStatus, model.ComponentFan, "FAN-1F")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if a.Source() != "fan/FAN-1F" {
		t.Errorf("Source() = %q, want fan/FAN-1F", a.Source())
	}
	if (Event{}).Source() != "" {
		t.Error("expected empty source without component")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindPresence, "PRESENCE"},
		{KindRebootCause, "REBOOT_CAUSE"},
		{KindAttribute, "ATTRIBUTE"},
		{Kind(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}

	k, ok := ParseKind("threshold")
	if !ok || k != KindThreshold {
		t.Errorf("ParseKind(threshold) = %v, %v", k, ok)
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Error("ParseKind(bogus) should fail")
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	e := NewEvent(KindThreshold, model.ComponentThermal, "CPU Core")
	e.Severity = SeverityCritical
	e.Platform = "x86_64-acme_ds4000-r0"
	e.Threshold = &ThresholdEvent{Threshold: "critical", Value: 97.5, Limit: 95, FanSpeed: 100}

	data, err := EncodeEvent(e)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if got.ID != e.ID || got.Kind != KindThreshold || got.Severity != SeverityCritical {
		t.Errorf("header mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
	if got.ComponentType != model.ComponentThermal || got.Component != "CPU Core" {
		t.Errorf("component = %v/%s", got.ComponentType, got.Component)
	}
	if got.Threshold == nil || got.Threshold.Value != 97.5 || got.Threshold.FanSpeed != 100 {
		t.Errorf("threshold payload = %+v", got.Threshold)
	}
	if got.Presence != nil || got.Error != nil {
		t.Error("unexpected payloads set")
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e1 := presence("Ethernet0", 0, true)
	e1.Timestamp = base
	e2 := NewEvent(KindStatus, model.ComponentFan, "FAN-1F")
	e2.Timestamp = base.Add(time.Minute)
	e2.Severity = SeverityWarning
	e2.Status = &StatusEvent{OldStatus: "OK", NewStatus: "Not OK"}
	e3 := presence("Ethernet4", 1, false)
	e3.Timestamp = base.Add(2 * time.Minute)

	path := createTestLogFile(t, []Event{e1, e2, e3})

	xcvr := model.ComponentTransceiver
	kind := KindStatus
	start := base.Add(30 * time.Second)
	end := base.Add(2 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"All", Filter{}, []string{e1.ID, e2.ID, e3.ID}},
		{"ComponentType", Filter{ComponentType: &xcvr}, []string{e1.ID, e3.ID}},
		{"Component", Filter{Component: "Ethernet4"}, []string{e3.ID}},
		{"Kind", Filter{Kind: &kind}, []string{e2.ID}},
		{"MinSeverity", Filter{MinSeverity: SeverityWarning}, []string{e2.ID}},
		{"TimeRange", Filter{TimeStart: &start, TimeEnd: &end}, []string{e2.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ReadAll(path, tt.filter)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.want))
			}
			for i, e := range events {
				if e.ID != tt.want[i] {
					t.Errorf("event %d ID = %s, want %s", i, e.ID, tt.want[i])
				}
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	events, err := ReadAll(filepath.Join(t.TempDir(), "absent.plog"), Filter{})
	if err != nil || events != nil {
		t.Errorf("ReadAll(absent) = %v, %v; want nil, nil", events, err)
	}
	if _, err := NewReader(filepath.Join(t.TempDir(), "absent.plog")); err == nil {
		t.Error("NewReader should fail for a missing file")
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	path := createTestLogFile(t, []Event{presence("Ethernet0", 0, true), presence("Ethernet0", 0, false)})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("truncated record: got %v, want io.EOF", err)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := createTestLogFile(t, []Event{presence("Ethernet0", 0, true)})

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(presence("Ethernet0", 0, false))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent and later events are dropped.
	logger.Log(presence("Ethernet0", 0, true))
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Presence.Present {
		t.Error("second event should be a removal")
	}
}

func TestFileLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.plog")
	logger, err := NewRotatingFileLogger(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingFileLogger failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		logger.Log(presence("Ethernet0", 0, i%2 == 0))
	}
	logger.Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}
	rotated, _ := ReadAll(path+".1", Filter{})
	current, _ := ReadAll(path, Filter{})
	if len(rotated) == 0 {
		t.Error("rotated file should hold events")
	}
	if len(rotated)+len(current) > 4 {
		t.Errorf("more events than logged: %d + %d", len(rotated), len(current))
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b int
	m := NewMultiLogger(
		LoggerFunc(func(Event) { a++ }),
		nil,
		LoggerFunc(func(Event) { b++ }),
	)
	m.Log(presence("Ethernet0", 0, true))
	m.Log(presence("Ethernet0", 0, false))

	if a != 2 || b != 2 {
		t.Errorf("got a=%d b=%d, want 2 and 2", a, b)
	}
	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))

	e := NewEvent(KindStatus, model.ComponentPSU, "PSU 1")
	e.Severity = SeverityWarning
	e.Status = &StatusEvent{OldStatus: "OK", NewStatus: "Not OK", Reason: "power good deasserted"}
	adapter.Log(e)

	out := buf.String()
	for _, want := range []string{"level=WARN", "kind=STATUS", `component="psu/PSU 1"`, `new_status="Not OK"`, "reason="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

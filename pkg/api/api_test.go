package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/metrics"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/monitor"
	"github.com/netplatform/pmon-go/pkg/onie"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/platform/platformtest"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/subscription"
)

const testPlatform = "x86_64-acme_ds4000-r0"

type fixture struct {
	ch   *platformtest.Chassis
	mon  *monitor.Monitor
	hub  *Hub
	srv  *Server
	subs *subscription.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cause := filepath.Join(dir, "reboot-cause.txt")
	require.NoError(t, os.WriteFile(cause, []byte("User issued 'reboot' command [User: admin]\n"), 0644))

	ch := platformtest.NewChassis()
	ch.Xcvr(0).Insert()

	store := persistence.NewStateStore(filepath.Join(dir, "state.json"))
	det := &rebootcause.Determiner{
		Hardware:  ch,
		CauseFile: cause,
		Store:     store,
		Platform:  testPlatform,
		BootTime:  func() (time.Time, error) { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), nil },
	}
	subs := subscription.NewManager()
	hub := NewHub(subs, nil)
	met := metrics.New()

	mon, err := monitor.New(ch, monitor.Config{
		Platform:        testPlatform,
		HwSKU:           "ACME-DS4000-32C",
		FanInterval:     time.Hour,
		PSUInterval:     time.Hour,
		ThermalInterval: time.Hour,
		DOMInterval:     time.Hour,
		SystemInterval:  time.Hour,
		NotifyInterval:  10 * time.Millisecond,
		ChangeTimeout:   20 * time.Millisecond,
		Events:          hub,
		Metrics:         met,
		Subscriptions:   subs,
		Store:           store,
		RebootCause:     det,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mon.Start(ctx))
	t.Cleanup(func() {
		mon.Stop()
		cancel()
	})

	srv := NewServer(Config{
		Version:       "1.0.0-test",
		Monitor:       mon,
		Metrics:       met,
		Subscriptions: subs,
		RebootCause:   det,
		Hub:           hub,
	})
	return &fixture{ch: ch, mon: mon, hub: hub, srv: srv, subs: subs}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.0.0-test", resp.Version)
	assert.Equal(t, testPlatform, resp.Platform)
	assert.True(t, resp.StateDB)
}

func TestChassis(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/chassis", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ChassisResponse](t, w)
	assert.Equal(t, "DS4000", resp.Name)
	assert.Equal(t, "ACME-DS4000-32C", resp.HwSKU)
	assert.Equal(t, 2, resp.Counts["fan"])
	assert.Equal(t, 2, resp.Counts["thermal"])
	assert.Equal(t, 4, resp.Counts["transceiver"])
	assert.Equal(t, 1, resp.Counts["psu"])
	assert.Equal(t, f.mon.Policy().Applied(), resp.FanSpeed)
	require.NotNil(t, resp.Chassis)
	assert.Equal(t, model.ComponentChassis, resp.Chassis.Type)
}

func TestComponents(t *testing.T) {
	f := newFixture(t)

	t.Run("All", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/components", nil)
		require.Equal(t, http.StatusOK, w.Code)
		info := decode[model.InventoryInfo](t, w)
		assert.Equal(t, testPlatform, info.Platform)
		assert.Equal(t, f.mon.Inventory().Len(), len(info.Components))
	})

	t.Run("ByType", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/components/fans", nil)
		require.Equal(t, http.StatusOK, w.Code)
		fans := decode[[]model.ComponentInfo](t, w)
		require.Len(t, fans, 2)
		assert.Equal(t, "FAN-1F", fans[0].Name)
		assert.Equal(t, "FAN-1R", fans[1].Name)
	})

	t.Run("UnknownType", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/components/toaster", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
	})

	t.Run("One", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/components/thermal/ASIC", nil)
		require.Equal(t, http.StatusOK, w.Code)
		info := decode[model.ComponentInfo](t, w)
		assert.Equal(t, "ASIC", info.Name)
		assert.EqualValues(t, 50, info.Attributes["temperature"])
	})

	t.Run("NotFound", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/components/fan/FAN-9", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCommand(t *testing.T) {
	f := newFixture(t)
	fan := f.ch.Drawer(0).Members[0].(*platformtest.Fan)

	w := f.do(t, http.MethodPost, "/api/v1/components/fan/FAN-1F/set_speed", map[string]any{"percent": 80})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	assert.Equal(t, "fan/FAN-1F", resp.Component)
	assert.Equal(t, "set_speed", resp.Command)
	assert.EqualValues(t, 80, resp.Result["percent"])
	assert.Contains(t, fan.SpeedSets(), 80)

	w = f.do(t, http.MethodPost, "/api/v1/components/fan/FAN-1F/set_speed", map[string]any{"percent": "fast"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/components/fan/FAN-1F/explode", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransceiverCommands(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/transceivers/0/lpmode", LPModeRequest{Enable: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, f.ch.Xcvr(0).LPMode)

	w = f.do(t, http.MethodPost, "/api/v1/transceivers/0/reset", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.ch.Xcvr(0).Resets)

	// Empty cage.
	w = f.do(t, http.MethodPost, "/api/v1/transceivers/1/reset", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/transceivers/99/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/transceivers/abc/reset", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSysEEPROM(t *testing.T) {
	t.Run("Unavailable", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodGet, "/api/v1/syseeprom", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Available", func(t *testing.T) {
		f := newFixture(t)
		f.ch.EEPROM = &onie.Info{
			Version: 1,
			TLVs: []onie.TLV{
				{Code: onie.CodeProductName, Value: []byte("DS4000")},
				{Code: onie.CodeSerialNumber, Value: []byte("SN123")},
			},
			CRCValid: true,
		}
		require.NoError(t, f.mon.Inventory().Chassis.LoadEEPROM(context.Background()))

		w := f.do(t, http.MethodGet, "/api/v1/syseeprom", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[EEPROMResponse](t, w)
		assert.True(t, resp.CRCValid)
		require.NotEmpty(t, resp.Fields)
		assert.Equal(t, "SN123", f.mon.Inventory().Chassis.Serial())
	})
}

func TestRebootCause(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/reboot-cause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RebootCauseResponse](t, w)
	require.NotNil(t, resp.Current)
	assert.Equal(t, "User issued 'reboot' command", resp.Current.Cause)
	assert.False(t, resp.Current.Hardware)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "User issued 'reboot' command", resp.History[0].Cause)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pmon_")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(model.ErrCommandNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func dial(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?type=thermal&component=ASIC&attributes=temperature&min=0s&max=1m")

	msg := readMessage(t, conn)
	require.Equal(t, MessageNotification, msg.Type)
	require.NotNil(t, msg.Notification)
	assert.True(t, msg.Notification.IsPriming)
	assert.EqualValues(t, 50, msg.Notification.Changes["thermal/ASIC"]["temperature"])
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	f.ch.ThermalList[1].(*platformtest.Thermal).SetTemperature(62)
	f.mon.PollThermals(context.Background())

	msg = readMessage(t, conn)
	require.Equal(t, MessageNotification, msg.Type)
	assert.False(t, msg.Notification.IsPriming)
	assert.EqualValues(t, 62, msg.Notification.Changes["thermal/ASIC"]["temperature"])

	conn.Close()
	assert.Eventually(t, func() bool { return f.subs.Count() == 0 && f.hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamEvents(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?type=transceiver&attributes=presence")

	msg := readMessage(t, conn)
	require.True(t, msg.Notification.IsPriming)
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// Filtered out by type.
	f.hub.Log(eventlog.NewEvent(eventlog.KindStatus, model.ComponentFan, "FAN-1F"))

	f.ch.Xcvr(2).Insert()
	f.ch.Events <- platform.ChangeSet{2: platform.EventInserted}

	// The presence notification may arrive before the event.
	var ev *EventMessage
	for i := 0; i < 4 && ev == nil; i++ {
		msg = readMessage(t, conn)
		if msg.Type == MessageEvent && msg.Event.Kind == "PRESENCE" {
			ev = msg.Event
		}
	}
	require.NotNil(t, ev)
	assert.Equal(t, "INFO", ev.Severity)
	assert.Equal(t, "transceiver/Ethernet8", ev.Source)
	require.NotNil(t, ev.Presence)
	assert.True(t, ev.Presence.Present)
	assert.Equal(t, 2, ev.Presence.Port)
}

func TestStreamBadQuery(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"?type=toaster", "?min=soon", "?events=maybe"} {
		w := f.do(t, http.MethodGet, "/api/v1/events"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

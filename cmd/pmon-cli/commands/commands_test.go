package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/client"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/onie"
)

type fakeAPI struct {
	lastBody map[string]any
	lastPath string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		reply(w, api.HealthResponse{Status: "ok", Version: "1.0", Platform: "x86_64-acme_ds4000-r0", StateDB: true})
	})
	mux.HandleFunc("GET /api/v1/chassis", func(w http.ResponseWriter, r *http.Request) {
		reply(w, api.ChassisResponse{
			Name: "DS4000", Platform: "x86_64-acme_ds4000-r0", Serial: "SN123", FanSpeed: 60,
			Counts: map[string]int{"fan": 2, "thermal": 2},
		})
	})
	mux.HandleFunc("GET /api/v1/components/{type}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("type") {
		case "fan":
			reply(w, []*model.ComponentInfo{
				{Type: model.ComponentFan, Name: "FAN-1F", Parent: "FanTray1", Attributes: map[string]any{"presence": true, "status": "OK", "speed": 55, "target_speed": 60}},
				{Type: model.ComponentFan, Name: "FAN-1R", Parent: "FanTray1", Attributes: map[string]any{"presence": false, "speed": nil}},
			})
		case "led":
			reply(w, []*model.ComponentInfo{{Type: model.ComponentLED, Name: "SYS", Attributes: map[string]any{"led": "green"}}})
		default:
			w.WriteHeader(http.StatusBadRequest)
			reply(w, api.ErrorResponse{Error: "bad type"})
		}
	})
	mux.HandleFunc("GET /api/v1/components/{type}/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "ASIC" {
			w.WriteHeader(http.StatusNotFound)
			reply(w, api.ErrorResponse{Error: "component not found"})
			return
		}
		reply(w, &model.ComponentInfo{Type: model.ComponentThermal, Name: "ASIC", Attributes: map[string]any{"temperature": 50.5, "high_threshold": 95}})
	})
	mux.HandleFunc("POST /api/v1/components/{type}/{name}/{command}", func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastBody = nil
		json.NewDecoder(r.Body).Decode(&f.lastBody)
		reply(w, api.CommandResponse{Component: r.PathValue("name"), Command: r.PathValue("command")})
	})
	mux.HandleFunc("POST /api/v1/transceivers/{port}/{op}", func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastBody = nil
		json.NewDecoder(r.Body).Decode(&f.lastBody)
		if r.PathValue("port") == "1" {
			w.WriteHeader(http.StatusConflict)
			reply(w, api.ErrorResponse{Error: "transceiver not present"})
			return
		}
		reply(w, api.CommandResponse{})
	})
	mux.HandleFunc("GET /api/v1/syseeprom", func(w http.ResponseWriter, r *http.Request) {
		reply(w, api.EEPROMResponse{CRCValid: false, Fields: []onie.Field{{Name: "Serial Number", Code: "0x23", Len: 5, Value: "SN123"}}})
	})
	mux.HandleFunc("GET /api/v1/reboot-cause", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{
			"current": map[string]any{"cause": "Power Loss", "hardware": true},
			"history": []map[string]any{
				{"cause": "Kernel Panic", "time": "2026-01-01T00:00:00Z"},
				{"cause": "Power Loss", "hardware": true, "time": "2026-02-01T00:00:00Z"},
			},
		})
	})
	return mux
}

func newCLI(t *testing.T) (*CLI, *bytes.Buffer, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	var out bytes.Buffer
	return &CLI{Client: client.New(srv.URL), Out: &out}, &out, f
}

func TestShowHealthAndChassis(t *testing.T) {
	cli, out, _ := newCLI(t)
	ctx := context.Background()

	require.NoError(t, cli.Exec(ctx, []string{"show", "health"}))
	assert.Contains(t, out.String(), "STATE_DB: connected")

	out.Reset()
	require.NoError(t, cli.Exec(ctx, []string{"show", "chassis"}))
	assert.Contains(t, out.String(), "Fan speed: 60%")
	assert.Contains(t, out.String(), "fan:")
	assert.Contains(t, out.String(), "Serial:    SN123")
}

func TestShowTable(t *testing.T) {
	cli, out, _ := newCLI(t)

	require.NoError(t, cli.Exec(context.Background(), []string{"show", "fans"}))
	s := out.String()
	assert.Regexp(t, `Name\s+Drawer\s+Presence\s+Status\s+Speed`, s)
	assert.Regexp(t, `FAN-1F\s+FanTray1\s+Present\s+OK\s+55\s+60`, s)
	assert.Regexp(t, `FAN-1R\s+FanTray1\s+Not Present\s+N/A\s+N/A`, s)

	// Types without a column layout print all attributes.
	out.Reset()
	require.NoError(t, cli.Exec(context.Background(), []string{"show", "leds"}))
	assert.Contains(t, out.String(), "led=green")

	err := cli.Exec(context.Background(), []string{"show", "toasters"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestShowComponent(t *testing.T) {
	cli, out, _ := newCLI(t)

	require.NoError(t, cli.Exec(context.Background(), []string{"show", "component", "thermal", "ASIC"}))
	assert.Contains(t, out.String(), "thermal ASIC")
	assert.Regexp(t, `temperature\s+50.50`, out.String())

	err := cli.Exec(context.Background(), []string{"show", "component", "thermal", "CPU"})
	assert.True(t, client.IsNotFound(err))

	cli.JSON = true
	out.Reset()
	require.NoError(t, cli.Exec(context.Background(), []string{"show", "component", "thermal", "ASIC"}))
	var ci model.ComponentInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &ci))
	assert.Equal(t, "ASIC", ci.Name)
}

func TestShowEEPROMAndRebootCause(t *testing.T) {
	cli, out, _ := newCLI(t)

	require.NoError(t, cli.Exec(context.Background(), []string{"show", "syseeprom"}))
	assert.Regexp(t, `Serial Number\s+0x23\s+5\s+SN123`, out.String())
	assert.Contains(t, out.String(), "Checksum is invalid.")

	out.Reset()
	require.NoError(t, cli.Exec(context.Background(), []string{"show", "reboot-cause"}))
	assert.Equal(t, "Power Loss\n", out.String())

	out.Reset()
	require.NoError(t, cli.Exec(context.Background(), []string{"show", "reboot-cause", "history"}))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "Power Loss", "newest first")
}

func TestInvoke(t *testing.T) {
	cli, out, f := newCLI(t)

	require.NoError(t, cli.Exec(context.Background(), []string{"invoke", "fan", "FAN-1F", "set_speed", "percent=80"}))
	assert.Equal(t, "/api/v1/components/fan/FAN-1F/set_speed", f.lastPath)
	assert.Equal(t, map[string]any{"percent": float64(80)}, f.lastBody)
	assert.Equal(t, "OK\n", out.String())

	assert.ErrorIs(t, cli.Exec(context.Background(), []string{"invoke", "fan"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec(context.Background(), []string{"invoke", "fan", "FAN-1F", "set_speed", "80"}), ErrUsage)
}

func TestTransceiverCommands(t *testing.T) {
	cli, out, f := newCLI(t)

	require.NoError(t, cli.Exec(context.Background(), []string{"lpmode", "8", "on"}))
	assert.Equal(t, "/api/v1/transceivers/8/lpmode", f.lastPath)
	assert.Equal(t, map[string]any{"enable": true}, f.lastBody)
	assert.Contains(t, out.String(), "Port 8 low power mode on")

	require.NoError(t, cli.Exec(context.Background(), []string{"reset", "8"}))
	assert.Equal(t, "/api/v1/transceivers/8/reset", f.lastPath)

	var se *client.StatusError
	require.ErrorAs(t, cli.Exec(context.Background(), []string{"reset", "1"}), &se)
	assert.Equal(t, http.StatusConflict, se.Code)

	assert.ErrorIs(t, cli.Exec(context.Background(), []string{"lpmode", "8", "maybe"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec(context.Background(), []string{"reset", "x"}), ErrUsage)
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]string{"percent=80", "ratio=0.5", "enable=true", "color=amber", "flag=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"percent": int64(80), "ratio": 0.5, "enable": true, "color": "amber", "flag": int64(1)}, p)

	_, err = ParseParams([]string{"=x"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestWatchOptions(t *testing.T) {
	opts, err := WatchOptions([]string{"thermals", "ASIC", "attrs=temperature,high_threshold", "min=5s", "events=false"})
	require.NoError(t, err)
	assert.Equal(t, client.WatchOptions{
		Type:        model.ComponentThermal,
		Component:   "ASIC",
		Attributes:  []string{"temperature", "high_threshold"},
		MinInterval: 5 * time.Second,
		NoEvents:    true,
	}, opts)

	for _, bad := range [][]string{{"a", "b", "c"}, {"min=soon"}, {"colour=red"}, {"toasters"}} {
		_, err := WatchOptions(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestPrintStreamMessage(t *testing.T) {
	var out bytes.Buffer
	cli := &CLI{Out: &out}
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local)

	var msg api.StreamMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"notification","notification":{"subscription_id":1,"priming":true,
		"changes":{"thermal/ASIC":{"temperature":50,"high_threshold":95}},"timestamp":"`+ts.Format(time.RFC3339)+`"}}`), &msg))
	cli.printStreamMessage(msg)
	assert.Equal(t, "10:00:00 current   thermal/ASIC high_threshold=95 temperature=50\n", out.String())

	out.Reset()
	require.NoError(t, json.Unmarshal([]byte(`{"type":"event","event":{"id":"x","kind":"PRESENCE","severity":"INFO",
		"source":"transceiver/Ethernet8","timestamp":"`+ts.Format(time.RFC3339)+`","presence":{"Present":false,"Port":2}}}`), &msg))
	msg.Notification = nil
	cli.printStreamMessage(msg)
	assert.Equal(t, "10:00:00 INFO      PRESENCE transceiver/Ethernet8 removed\n", out.String())
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	cli := &CLI{Out: io.Writer(&out)}
	require.NoError(t, cli.Exec(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "show reboot-cause")
	assert.ErrorIs(t, cli.Exec(context.Background(), nil), ErrUsage)
	assert.ErrorIs(t, cli.Exec(context.Background(), []string{"explode"}), ErrUsage)
}

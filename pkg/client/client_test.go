package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/subscription"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return New(strings.TrimPrefix(ts.URL, "http://")), mux
}

func TestHealth(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: "1.2.3", StateDB: true})
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.True(t, h.StateDB)
}

func TestComponents(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("GET /api/v1/components/{type}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "psu", r.PathValue("type"))
		writeJSON(w, http.StatusOK, []*model.ComponentInfo{{Type: model.ComponentPSU, Name: "PSU 1"}})
	})
	mux.HandleFunc("GET /api/v1/components/{type}/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "PSU 1" {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "component not found"})
			return
		}
		writeJSON(w, http.StatusOK, model.ComponentInfo{Type: model.ComponentPSU, Name: "PSU 1",
			Attributes: map[string]any{"voltage": 12.1}})
	})

	psus, err := c.Components(context.Background(), model.ComponentPSU)
	require.NoError(t, err)
	require.Len(t, psus, 1)
	assert.Equal(t, "PSU 1", psus[0].Name)

	psu, err := c.Component(context.Background(), model.ComponentPSU, "PSU 1")
	require.NoError(t, err)
	assert.Equal(t, 12.1, psu.Attributes["voltage"])

	_, err = c.Component(context.Background(), model.ComponentPSU, "PSU 9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "component not found")
}

func TestInvoke(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("POST /api/v1/components/{type}/{name}/{command}", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		writeJSON(w, http.StatusOK, api.CommandResponse{
			Component: r.PathValue("type") + "/" + r.PathValue("name"),
			Command:   r.PathValue("command"),
			Result:    params,
		})
	})
	mux.HandleFunc("POST /api/v1/transceivers/{port}/reset", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "port " + r.PathValue("port") + ": not present"})
	})

	result, err := c.Invoke(context.Background(), model.ComponentFan, "FAN-1F", "set_speed", map[string]any{"percent": 70})
	require.NoError(t, err)
	assert.EqualValues(t, 70, result["percent"])

	err = c.ResetTransceiver(context.Background(), 5)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "port 5: not present", se.Message)
}

func TestWatchOptionsQuery(t *testing.T) {
	q := WatchOptions{
		Type:        model.ComponentTransceiver,
		Attributes:  []string{"presence", "temperature"},
		MinInterval: 500 * time.Millisecond,
		NoEvents:    true,
	}.query()
	assert.Equal(t, "transceiver", q.Get("type"))
	assert.Equal(t, "presence,temperature", q.Get("attributes"))
	assert.Equal(t, "500ms", q.Get("min"))
	assert.Empty(t, q.Get("max"))
	assert.Equal(t, "false", q.Get("events"))

	assert.Empty(t, WatchOptions{}.query().Encode())
}

func TestWatch(t *testing.T) {
	c, mux := newTestServer(t)
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fan", r.URL.Query().Get("type"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(api.StreamMessage{
			Type: api.MessageNotification,
			Notification: &subscription.Notification{
				SubscriptionID: 1,
				IsPriming:      true,
				Changes:        subscription.Values{"fan/FAN-1F": {"speed": 50}},
			},
		})
		conn.WriteJSON(api.StreamMessage{
			Type:  api.MessageEvent,
			Event: &api.EventMessage{Kind: "STATUS", Source: "fan/FAN-1F"},
		})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	var got []api.StreamMessage
	err := c.Watch(context.Background(), WatchOptions{Type: model.ComponentFan}, func(m api.StreamMessage) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Notification.IsPriming)
	assert.EqualValues(t, 50, got[0].Notification.Changes["fan/FAN-1F"]["speed"])
	assert.Equal(t, "STATUS", got[1].Event.Kind)
}

func TestWatchCancel(t *testing.T) {
	c, mux := newTestServer(t)
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Watch(ctx, WatchOptions{}, func(api.StreamMessage) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

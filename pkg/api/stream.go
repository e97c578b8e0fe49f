package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	eventlog "github.com/netplatform/pmon-go/pkg/log"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/subscription"
)

// Stream defaults.
const (
	DefaultMinInterval = time.Second
	DefaultMaxInterval = 60 * time.Second

	streamBuffer = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Hub fans out subscription notifications and platform events to the
// websocket clients of GET /api/v1/events.
//
// Query parameters: type, component and attributes (comma separated)
// select what a client receives, min and max set the coalescing and
// heartbeat intervals, and events=false turns off platform events.
type Hub struct {
	subs     *subscription.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// inventory is set by the server that mounts the hub.
	inventory func() *model.Inventory

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	bySub   map[uint32]*streamClient
}

type streamClient struct {
	conn   *websocket.Conn
	filter subscription.Filter
	events bool
	subID  uint32

	send      chan StreamMessage
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub. It takes over the notification callback of subs,
// which may be nil when only platform events are streamed.
func NewHub(subs *subscription.Manager, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subs:   subs,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
		bySub:   make(map[uint32]*streamClient),
	}
	if subs != nil {
		subs.OnNotification(h.dispatch)
	}
	return h
}

// Clients returns the number of connected stream clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Log implements eventlog.Logger.
func (h *Hub) Log(event eventlog.Event) {
	h.mu.Lock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wantsEvent(event) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	msg := StreamMessage{Type: MessageEvent, Event: NewEventMessage(event)}
	for _, c := range targets {
		h.enqueue(c, msg)
	}
}

var _ eventlog.Logger = (*Hub)(nil)

// dispatch routes a notification to the client owning the subscription.
func (h *Hub) dispatch(n subscription.Notification) {
	h.mu.Lock()
	c := h.bySub[n.SubscriptionID]
	h.mu.Unlock()
	if c == nil {
		return
	}
	h.enqueue(c, StreamMessage{Type: MessageNotification, Notification: &n})
}

func (h *Hub) enqueue(c *streamClient, msg StreamMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		h.logger.Warn("stream client too slow, dropping message",
			slog.String("remote", c.conn.RemoteAddr().String()),
			slog.String("type", msg.Type))
	}
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	filter, minInterval, maxInterval, events, err := parseStreamQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &streamClient{
		conn:   conn,
		filter: filter,
		events: events,
		send:   make(chan StreamMessage, streamBuffer),
		done:   make(chan struct{}),
	}

	subs := h.subs
	if subs != nil && h.inventory == nil {
		subs = nil
	}
	if subs != nil {
		id, err := subs.Subscribe(filter, minInterval, maxInterval, nil)
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
				time.Now().Add(writeTimeout))
			conn.Close()
			return
		}
		c.subID = id
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if c.subID != 0 {
		h.bySub[c.subID] = c
	}
	h.mu.Unlock()

	h.logger.Info("stream client connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Uint64("subscription", uint64(c.subID)))

	if subs != nil {
		h.prime(c)
	}

	go h.writeLoop(c)
	h.readLoop(c)
	h.remove(c)
}

// prime queues the current values that pass the client's filter.
func (h *Hub) prime(c *streamClient) {
	sub, err := h.subs.Get(c.subID)
	if err != nil {
		return
	}
	current := subscription.Snapshot(h.inventory(), c.filter)
	sub.SetPrimingValues(current)
	h.enqueue(c, StreamMessage{
		Type: MessageNotification,
		Notification: &subscription.Notification{
			SubscriptionID: c.subID,
			Changes:        current,
			IsPriming:      true,
			Timestamp:      time.Now(),
		},
	})
}

// readLoop discards client messages until the connection fails.
func (h *Hub) readLoop(c *streamClient) {
	c.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	if c.subID != 0 {
		delete(h.bySub, c.subID)
	}
	h.mu.Unlock()

	if c.subID != 0 {
		h.subs.Unsubscribe(c.subID)
	}
	c.close()
	h.logger.Info("stream client disconnected", slog.String("remote", c.conn.RemoteAddr().String()))
}

// closeAll sends a close frame to every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		c.close()
	}
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// wantsEvent applies the component part of the filter. Events without a
// component always pass.
func (c *streamClient) wantsEvent(e eventlog.Event) bool {
	if !c.events {
		return false
	}
	if e.Component == "" {
		return true
	}
	return c.filter.MatchesComponent(e.ComponentType, e.Component)
}

func parseStreamQuery(r *http.Request) (subscription.Filter, time.Duration, time.Duration, bool, error) {
	q := r.URL.Query()
	var filter subscription.Filter
	if v := q.Get("type"); v != "" {
		t, err := model.ParseComponentType(v)
		if err != nil {
			return filter, 0, 0, false, err
		}
		filter.Type = t
	}
	filter.Component = q.Get("component")
	if v := q.Get("attributes"); v != "" {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Attributes = append(filter.Attributes, a)
			}
		}
	}

	minInterval, err := durationParam(q.Get("min"), DefaultMinInterval)
	if err != nil {
		return filter, 0, 0, false, fmt.Errorf("invalid min: %w", err)
	}
	maxInterval, err := durationParam(q.Get("max"), DefaultMaxInterval)
	if err != nil {
		return filter, 0, 0, false, fmt.Errorf("invalid max: %w", err)
	}

	events := true
	if v := q.Get("events"); v != "" {
		if events, err = strconv.ParseBool(v); err != nil {
			return filter, 0, 0, false, fmt.Errorf("invalid events: %w", err)
		}
	}
	return filter, minInterval, maxInterval, events, nil
}

func durationParam(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

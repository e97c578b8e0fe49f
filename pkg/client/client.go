// Package client is a Go client for the pmond HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/netplatform/pmon-go/pkg/api"
	"github.com/netplatform/pmon-go/pkg/model"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pmond returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("pmond returned %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from pmond.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to one pmond instance.
type Client struct {
	base string
	http *resty.Client
}

// New creates a client for base, e.g. "http://127.0.0.1:8787". A bare
// host:port is accepted.
func New(base string) *Client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimSuffix(base, "/")
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json")
	return &Client{base: base, http: rc}
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) *Client {
	c.http.SetTimeout(d)
	return c
}

func (c *Client) get(ctx context.Context, path string, out any, pathParams map[string]string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetResult(out).
		SetError(&api.ErrorResponse{}).
		Get(path)
	return check(resp, err)
}

func (c *Client) post(ctx context.Context, path string, body, out any, pathParams map[string]string) error {
	req := c.http.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetResult(out).
		SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	return check(req.Post(path))
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	se := &StatusError{Code: resp.StatusCode()}
	if e, ok := resp.Error().(*api.ErrorResponse); ok {
		se.Message = e.Error
	}
	return se
}

// Health returns the daemon health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.get(ctx, "/api/v1/health", &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chassis returns the chassis summary.
func (c *Client) Chassis(ctx context.Context) (*api.ChassisResponse, error) {
	var out api.ChassisResponse
	if err := c.get(ctx, "/api/v1/chassis", &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Inventory returns all components.
func (c *Client) Inventory(ctx context.Context) (*model.InventoryInfo, error) {
	var out model.InventoryInfo
	if err := c.get(ctx, "/api/v1/components", &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Components returns the components of type t.
func (c *Client) Components(ctx context.Context, t model.ComponentType) ([]*model.ComponentInfo, error) {
	var out []*model.ComponentInfo
	err := c.get(ctx, "/api/v1/components/{type}", &out, map[string]string{"type": t.String()})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Component returns one component.
func (c *Client) Component(ctx context.Context, t model.ComponentType, name string) (*model.ComponentInfo, error) {
	var out model.ComponentInfo
	err := c.get(ctx, "/api/v1/components/{type}/{name}", &out, map[string]string{
		"type": t.String(),
		"name": name,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoke runs a component command.
func (c *Client) Invoke(ctx context.Context, t model.ComponentType, name, command string, params map[string]any) (map[string]any, error) {
	var out api.CommandResponse
	if params == nil {
		params = map[string]any{}
	}
	err := c.post(ctx, "/api/v1/components/{type}/{name}/{command}", params, &out, map[string]string{
		"type":    t.String(),
		"name":    name,
		"command": command,
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SysEEPROM returns the decoded system EEPROM.
func (c *Client) SysEEPROM(ctx context.Context) (*api.EEPROMResponse, error) {
	var out api.EEPROMResponse
	if err := c.get(ctx, "/api/v1/syseeprom", &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// RebootCause returns the last reboot cause and the history.
func (c *Client) RebootCause(ctx context.Context) (*api.RebootCauseResponse, error) {
	var out api.RebootCauseResponse
	if err := c.get(ctx, "/api/v1/reboot-cause", &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetLPMode switches the low-power mode of the module on port.
func (c *Client) SetLPMode(ctx context.Context, port int, enable bool) error {
	return c.post(ctx, "/api/v1/transceivers/{port}/lpmode", api.LPModeRequest{Enable: enable}, &api.CommandResponse{},
		map[string]string{"port": strconv.Itoa(port)})
}

// ResetTransceiver resets the module on port.
func (c *Client) ResetTransceiver(ctx context.Context, port int) error {
	return c.post(ctx, "/api/v1/transceivers/{port}/reset", nil, &api.CommandResponse{},
		map[string]string{"port": strconv.Itoa(port)})
}

// WatchOptions select what a Watch stream delivers.
type WatchOptions struct {
	Type       model.ComponentType
	Component  string
	Attributes []string

	MinInterval time.Duration
	MaxInterval time.Duration

	// NoEvents turns off platform events.
	NoEvents bool
}

func (o WatchOptions) query() url.Values {
	q := url.Values{}
	if o.Type != 0 {
		q.Set("type", o.Type.String())
	}
	if o.Component != "" {
		q.Set("component", o.Component)
	}
	if len(o.Attributes) > 0 {
		q.Set("attributes", strings.Join(o.Attributes, ","))
	}
	if o.MinInterval > 0 {
		q.Set("min", o.MinInterval.String())
	}
	if o.MaxInterval > 0 {
		q.Set("max", o.MaxInterval.String())
	}
	if o.NoEvents {
		q.Set("events", "false")
	}
	return q
}

// Watch opens the event stream and calls fn for each message until ctx is
// done, fn returns an error, or the connection fails.
func (c *Client) Watch(ctx context.Context, opts WatchOptions, fn func(api.StreamMessage) error) error {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/api/v1/events"
	if q := opts.query().Encode(); q != "" {
		u += "?" + q
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return &StatusError{Code: resp.StatusCode}
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var msg api.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

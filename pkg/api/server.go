package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/netplatform/pmon-go/pkg/inventory"
	"github.com/netplatform/pmon-go/pkg/metrics"
	"github.com/netplatform/pmon-go/pkg/model"
	"github.com/netplatform/pmon-go/pkg/monitor"
	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/rebootcause"
	"github.com/netplatform/pmon-go/pkg/statedb"
	"github.com/netplatform/pmon-go/pkg/subscription"
)

// DefaultPort is the port pmond listens on.
const DefaultPort = 8787

// Config configures a Server.
type Config struct {
	Version string

	Monitor *monitor.Monitor

	// Optional.
	Metrics       *metrics.Collectors
	Subscriptions *subscription.Manager
	Publisher     *statedb.Publisher
	RebootCause   *rebootcause.Determiner

	// Hub streams GET /api/v1/events. One is created from Subscriptions
	// when nil.
	Hub *Hub

	Logger *slog.Logger
}

// Server is the HTTP API of pmond.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *Hub
	logger *slog.Logger
}

// NewServer creates a server for cfg.Monitor.
func NewServer(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
	}
	s.hub = cfg.Hub
	if s.hub == nil {
		s.hub = NewHub(cfg.Subscriptions, cfg.Logger)
	}
	s.hub.inventory = func() *model.Inventory { return s.inventory().Inventory }
	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/chassis", s.handleChassis)
	s.mux.HandleFunc("GET /api/v1/syseeprom", s.handleEEPROM)
	s.mux.HandleFunc("GET /api/v1/reboot-cause", s.handleRebootCause)

	s.mux.HandleFunc("GET /api/v1/components", s.handleComponents)
	s.mux.HandleFunc("GET /api/v1/components/{type}", s.handleComponentsByType)
	s.mux.HandleFunc("GET /api/v1/components/{type}/{name}", s.handleComponent)
	s.mux.HandleFunc("POST /api/v1/components/{type}/{name}/{command}", s.handleCommand)

	s.mux.HandleFunc("POST /api/v1/transceivers/{port}/lpmode", s.handleLPMode)
	s.mux.HandleFunc("POST /api/v1/transceivers/{port}/reset", s.handleReset)

	s.mux.HandleFunc("GET /api/v1/events", s.hub.handleStream)

	if s.config.Metrics != nil {
		s.mux.Handle("GET /metrics", s.config.Metrics.Handler())
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("API listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) inventory() *inventory.Inventory {
	return s.config.Monitor.Inventory()
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Platform: s.inventory().Platform(),
		StateDB:  true,
	}
	if s.config.Publisher != nil {
		resp.StateDB = s.config.Publisher.Connected()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChassis(w http.ResponseWriter, r *http.Request) {
	inv := s.inventory()
	counts := make(map[string]int)
	for _, t := range model.ComponentTypes {
		if n := len(inv.ByType(t)); n > 0 {
			counts[t.String()] = n
		}
	}
	writeJSON(w, http.StatusOK, ChassisResponse{
		Name:     inv.Chassis.Name(),
		Platform: inv.Platform(),
		HwSKU:    inv.HwSKU(),
		Serial:   inv.Chassis.Serial(),
		Counts:   counts,
		Chassis:  inv.Chassis.Info(),
		FanSpeed: s.config.Monitor.Policy().Applied(),
	})
}

func (s *Server) handleEEPROM(w http.ResponseWriter, r *http.Request) {
	info := s.inventory().Chassis.SysEEPROM()
	if info == nil {
		writeError(w, http.StatusNotFound, errors.New("system EEPROM not available"))
		return
	}
	writeJSON(w, http.StatusOK, EEPROMResponse{Fields: info.Fields(), CRCValid: info.CRCValid})
}

func (s *Server) handleRebootCause(w http.ResponseWriter, r *http.Request) {
	resp := RebootCauseResponse{
		Current: s.config.Monitor.RebootCause(),
		History: []persistence.RebootRecord{},
	}
	if d := s.config.RebootCause; d != nil {
		history, err := d.History()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if history != nil {
			resp.History = history
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory().Info())
}

func (s *Server) handleComponentsByType(w http.ResponseWriter, r *http.Request) {
	t, err := model.ParseComponentType(r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cs := s.inventory().ByType(t)
	out := make([]*model.ComponentInfo, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.Component, bool) {
	t, err := model.ParseComponentType(r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	c, err := s.inventory().Get(t, r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Info())
}

// handleCommand invokes a component command with the JSON object in the
// body as parameters.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	params := make(map[string]any)
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
	}
	s.invoke(w, r, c, r.PathValue("command"), params)
}

func (s *Server) transceiver(w http.ResponseWriter, r *http.Request) (*inventory.Transceiver, bool) {
	port, err := strconv.Atoi(r.PathValue("port"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid port %q", r.PathValue("port")))
		return nil, false
	}
	x := s.inventory().Transceiver(port)
	if x == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no transceiver on port %d", port))
		return nil, false
	}
	return x, true
}

func (s *Server) handleLPMode(w http.ResponseWriter, r *http.Request) {
	x, ok := s.transceiver(w, r)
	if !ok {
		return
	}
	var req LPModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	s.invoke(w, r, x.Component, inventory.CmdSetLPMode, map[string]any{inventory.ParamEnable: req.Enable})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	x, ok := s.transceiver(w, r)
	if !ok {
		return
	}
	s.invoke(w, r, x.Component, inventory.CmdReset, nil)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, c *model.Component, name string, params map[string]any) {
	result, err := c.InvokeCommand(r.Context(), name, params)
	if err != nil {
		s.logger.Debug("command failed",
			slog.String("component", c.Key()),
			slog.String("command", name),
			slog.Any("error", err))
		writeError(w, statusOf(err), err)
		return
	}
	s.logger.Info("command invoked", slog.String("component", c.Key()), slog.String("command", name))
	writeJSON(w, http.StatusOK, CommandResponse{Component: c.Key(), Command: name, Result: result})
}

// statusOf maps platform and model errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrCommandNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidParameters), errors.Is(err, platform.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrNotPresent):
		return http.StatusConflict
	case errors.Is(err, platform.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// Package web serves the dashboard over HTTP: widget views, control
// actions, the write ledger and a websocket stream of view changes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/dashboard"
	"github.com/dokzlo13/visbind/internal/ledger"
	"github.com/dokzlo13/visbind/internal/widgets"
)

// DefaultLedgerLimit is the number of ledger entries returned by default.
const DefaultLedgerLimit = 50

// Dashboard is the widget host the server exposes.
type Dashboard interface {
	Views() []dashboard.View
	View(id string) (dashboard.View, error)
	Control(ctx context.Context, id string, a widgets.Action) (widgets.Result, error)
	Subscribe(fn func(dashboard.View)) (unsubscribe func())
}

// LedgerReader reads journaled writes.
type LedgerReader interface {
	Recent(ctx context.Context, limit int) ([]*ledger.Entry, error)
	ByPoint(ctx context.Context, oid string, limit int) ([]*ledger.Entry, error)
}

// Server is the HTTP API.
type Server struct {
	addr           string
	dash           Dashboard
	ledger         LedgerReader
	hub            *Hub
	allowedOrigins []string
	httpServer     *http.Server
}

// NewServer creates a server for dash. ledger may be nil.
func NewServer(host string, port int, dash Dashboard, ledger LedgerReader, allowedOrigins []string) *Server {
	return &Server{
		addr:           fmt.Sprintf("%s:%d", host, port),
		dash:           dash,
		ledger:         ledger,
		hub:            NewHub(),
		allowedOrigins: allowedOrigins,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	router.HandleFunc("/api/widgets", s.handleListWidgets).Methods(http.MethodGet)
	router.HandleFunc("/api/widgets/{id}", s.handleGetWidget).Methods(http.MethodGet)
	router.HandleFunc("/api/widgets/{id}/control", s.handleControl).Methods(http.MethodPost)
	router.HandleFunc("/api/ledger", s.handleLedger).Methods(http.MethodGet)
	return router
}

// StartHub runs the websocket hub and feeds it view changes until the
// returned stop function is called.
func (s *Server) StartHub() (stop func()) {
	go s.hub.Run(s.dash.Views)
	unsubscribe := s.dash.Subscribe(func(v dashboard.View) {
		s.hub.Broadcast(Message{Type: MessageView, View: &v})
	})
	return func() {
		unsubscribe()
		s.hub.Stop()
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	stop := s.StartHub()
	defer stop()

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting HTTP server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"widgets": len(s.dash.Views()),
		"clients": s.hub.Clients(),
	})
}

func (s *Server) handleListWidgets(w http.ResponseWriter, _ *http.Request) {
	views := s.dash.Views()
	if views == nil {
		views = []dashboard.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	v, err := s.dash.View(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var a widgets.Action
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid action: " + err.Error()})
		return
	}
	if a.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action type required"})
		return
	}

	res, err := s.dash.Control(r.Context(), id, a)
	if err != nil {
		log.Debug().Err(err).Str("widget", id).Str("action", a.Type).Msg("Control request failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ledger disabled"})
		return
	}

	limit := DefaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if oid := r.URL.Query().Get("oid"); oid != "" {
		entries, err = s.ledger.ByPoint(r.Context(), oid, limit)
	} else {
		entries, err = s.ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, widgets.ErrUnsupportedAction),
		errors.Is(err, widgets.ErrInvalidAction),
		errors.Is(err, binding.ErrUnknownPoint),
		errors.Is(err, binding.ErrNotAdjustable):
		return http.StatusBadRequest
	case errors.Is(err, binding.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, binding.ErrClosed), errors.Is(err, binding.ErrNotStarted):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

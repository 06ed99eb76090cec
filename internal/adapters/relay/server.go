package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
)

// Poller is the part of the status poller the relay exposes.
type Poller interface {
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
	Refresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error)
}

// Server exposes a poller over HTTP and pushes its updates to websocket
// clients.
type Server struct {
	poller   Poller
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(poller Poller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		poller: poller,
		hub:    NewHub(logger),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes returns a chi.Router serving the relay endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Post("/refresh/{kind}", s.handleRefresh)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Run forwards poller updates to websocket clients until ctx is done or
// the poller closes its subscription.
func (s *Server) Run(ctx context.Context) {
	s.hub.Start()
	defer s.hub.Stop()

	updates, cancel := s.poller.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			s.hub.Broadcast(snapshotMessage(snap))
		}
	}
}

// Redirect tells every client to navigate to location. Clients connecting
// later receive it too.
func (s *Server) Redirect(location string) {
	s.logger.Info("broadcasting redirect", "location", location)
	s.hub.Broadcast(Message{Type: MessageRedirect, Location: location})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Snapshot   domain.Snapshot     `json:"snapshot"`
	Enablement []domain.Enablement `json:"enablement"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.poller.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, Enablement: snap.Enablements()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseJobKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enablement := s.poller.Snapshot().Enablement(kind)
	if !enablement.RefreshEnabled {
		writeError(w, http.StatusConflict, "refresh is not available for "+string(kind)+" data right now")
		return
	}

	result, err := s.poller.Refresh(r.Context(), kind)
	switch {
	case errors.Is(err, ports.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error(), "location": "/"})
		return
	case err != nil:
		s.logger.Warn("refresh failed", "kind", kind, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade to websocket", "error", err)
		return
	}
	s.hub.Register(conn)

	// Clients never send anything useful; reading only detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unregister(conn)
				return
			}
		}
	}()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func snapshotMessage(snap domain.Snapshot) Message {
	return Message{Type: MessageSnapshot, Snapshot: &snap, Enablement: snap.Enablements()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/orchestrator"
)

// StatusSource is satisfied by *orchestrator.Orchestrator.
type StatusSource interface {
	Status() orchestrator.Status
}

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Status StatusSource
}

// Server is the read-only status surface. It never accepts commands.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	status     StatusSource
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger.With("component", "httpapi"),
		mux:    mux,
		status: d.Status,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           loggingMiddleware(s.logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()

	if wantsProtobuf(r) {
		msg, err := statusToProto(st)
		if err != nil {
			s.logger.Error("status proto conversion failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	st := s.status.Status()
	if st.RebootRequested {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "reason": st.RebootReason})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

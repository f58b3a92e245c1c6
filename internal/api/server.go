package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/h1v3-io/ticketd/internal/codec"
	"github.com/h1v3-io/ticketd/internal/logbuf"
	"github.com/h1v3-io/ticketd/internal/middleware"
	"github.com/h1v3-io/ticketd/internal/ticket"
	"github.com/h1v3-io/ticketd/pkg/protocol"
)

// maxBodyBytes bounds request bodies; the largest valid body is well under it.
const maxBodyBytes = 64 << 10

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server is the ticket REST API server.
type Server struct {
	store  ticket.Store
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates a new API server. logger and logs may be nil.
func NewServer(store ticket.Store, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tickets", s.handleCreateTicket)
	mux.HandleFunc("GET /tickets/{id}", s.handleGetTicket)
	mux.HandleFunc("PATCH /tickets/{id}", s.handlePatchTicket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /debug/logs", s.handleGetLogs)

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Compress,
	)

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens on the configured address. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			s.logger.Warn("api server shutdown", "error", err)
		}
	}()

	s.logger.Info("api server starting", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Handlers ---

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}

	title, err := ticket.NewTitle(req.Title)
	if err != nil {
		s.reject(w, r, "Invalid title: "+err.Error())
		return
	}
	description, err := ticket.NewDescription(req.Description)
	if err != nil {
		s.reject(w, r, "Invalid description: "+err.Error())
		return
	}

	t, err := s.store.Add(ticket.Draft{Title: title, Description: description})
	if err != nil {
		s.internalError(w, r, "add ticket", err)
		return
	}
	s.logger.DebugContext(r.Context(), "ticket created",
		"ticket_id", uint64(t.ID), "request_id", middleware.GetRequestID(r.Context()))
	s.write(w, r, http.StatusCreated, toProtocol(t))
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	t, err := s.store.Get(id)
	if errors.Is(err, ticket.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "get ticket", err)
		return
	}
	s.write(w, r, http.StatusOK, toProtocol(t))
}

func (s *Server) handlePatchTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req protocol.PatchTicketRequest
	if !s.decode(w, r, &req) {
		return
	}

	patch, reason := buildPatch(req)
	if reason != "" {
		// A missing ticket outranks a bad field.
		if _, err := s.store.Get(id); errors.Is(err, ticket.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.reject(w, r, reason)
		return
	}

	t, err := s.store.Update(id, patch)
	if errors.Is(err, ticket.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "update ticket", err)
		return
	}
	s.write(w, r, http.StatusOK, toProtocol(t))
}

// buildPatch validates every provided field before the store is touched.
// The returned reason is empty when all fields are valid.
func buildPatch(req protocol.PatchTicketRequest) (ticket.Patch, string) {
	var p ticket.Patch
	if req.Title != nil {
		title, err := ticket.NewTitle(*req.Title)
		if err != nil {
			return ticket.Patch{}, "Invalid title: " + err.Error()
		}
		p.Title = &title
	}
	if req.Description != nil {
		description, err := ticket.NewDescription(*req.Description)
		if err != nil {
			return ticket.Patch{}, "Invalid description: " + err.Error()
		}
		p.Description = &description
	}
	if req.Status != nil {
		status, err := ticket.ParseStatus(*req.Status)
		if err != nil {
			return ticket.Patch{}, "Invalid status: " + err.Error()
		}
		p.Status = &status
	}
	return p, ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		s.write(w, r, http.StatusServiceUnavailable, protocol.Health{Status: "unavailable"})
		return
	}
	byStatus := make(map[string]int, len(st.ByStatus))
	for status, n := range st.ByStatus {
		byStatus[status.String()] = n
	}
	s.write(w, r, http.StatusOK, protocol.Health{
		Status:   "ok",
		Tickets:  st.Tickets,
		NextID:   uint64(st.NextID),
		ByStatus: byStatus,
	})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.write(w, r, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	f := logbuf.Filter{
		Limit:     200,
		MinLevel:  slog.LevelDebug,
		RequestID: q.Get("request_id"),
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		}
	}

	s.write(w, r, http.StatusOK, s.logs.Query(f))
}

// --- Helpers ---

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (ticket.ID, bool) {
	id, err := ticket.ParseID(r.PathValue("id"))
	if err != nil {
		s.reject(w, r, "Invalid ticket id: "+err.Error())
		return 0, false
	}
	return id, true
}

// decode reads the request body with the codec named by Content-Type.
// It writes the error response itself and reports whether to continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	c, err := codec.ForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.write(w, r, http.StatusUnsupportedMediaType, "Unsupported media type: "+r.Header.Get("Content-Type"))
		return false
	}
	if err := c.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		s.reject(w, r, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// reject answers 400 with a human-readable reason.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string) {
	s.logger.DebugContext(r.Context(), "request rejected",
		"reason", reason, "request_id", middleware.GetRequestID(r.Context()))
	s.write(w, r, http.StatusBadRequest, reason)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.ErrorContext(r.Context(), op+" failed",
		"error", err, "request_id", middleware.GetRequestID(r.Context()))
	s.write(w, r, http.StatusInternalServerError, "Internal server error")
}

// write encodes v with the codec the client accepts.
func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	c := codec.Negotiate(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(status)
	if err := c.Encode(w, v); err != nil {
		s.logger.DebugContext(r.Context(), "write response", "error", err)
	}
}

func toProtocol(t ticket.Ticket) protocol.Ticket {
	return protocol.Ticket{
		ID:          uint64(t.ID),
		Title:       t.Title.String(),
		Description: t.Description.String(),
		Status:      t.Status.String(),
	}
}

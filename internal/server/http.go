// Package server exposes the timeline over a JSON HTTP API: figure
// retrieval, zoom/toggle session state, event and annotation writes,
// and the audit trail.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/timeline"
	"github.com/chainsmoker-project/chainsmoker/internal/viewport"
)

// Options controls the API server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8080"
	Bind string
	// Token for Authorization: Bearer <token> header. Empty disables auth.
	Token string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// Logger for minimal logs (optional)
	Logger *log.Logger
	// MaxBodyBytes caps request body size; defaults to 1 MiB.
	MaxBodyBytes int64
}

// Server serves the timeline API backed by a Service.
type Server struct {
	srv     *http.Server
	svc     *service.Service
	opts    Options
	limiter *simpleLimiter
	logger  *log.Logger
	started int32
}

// New constructs the API server.
func New(svc *service.Service, opts Options) (*Server, error) {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 * 1024 * 1024
	}
	var logger *log.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}
	s := &Server{
		svc:     svc,
		opts:    opts,
		limiter: lim,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", s.handleHealth)
	mux.HandleFunc("/api/figures", s.guard(s.handleFigures))
	mux.HandleFunc("/api/session", s.guard(s.handleSession))
	mux.HandleFunc("/api/zoom", s.guard(s.handleZoom))
	mux.HandleFunc("/api/toggle", s.guard(s.handleToggle))
	mux.HandleFunc("/api/events", s.guard(s.handleEvents))
	mux.HandleFunc("/api/events/", s.guard(s.handleEventByID))
	mux.HandleFunc("/api/audit", s.guard(s.handleAudit))

	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start starts the server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("api server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.logger.Printf("API listening on http://%s rps=%d burst=%d auth=%v",
		s.opts.Bind, s.opts.RPS, s.opts.Burst, s.opts.Token != "")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		if s.limiter != nil {
			s.limiter.Close()
		}
	}()
	return nil
}

// guard wraps a handler with bearer auth, rate limiting and a body cap.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
				w.Header().Set("WWW-Authenticate", `Bearer realm="chainsmoker"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(r.Context()); err != nil {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type figuresResponse struct {
	Compact timeline.Figure `json:"compact"`
	Full    timeline.Figure `json:"full"`
	Visible []string        `json:"visible_tactics"`
	Missing []string        `json:"missing_tactics"`
}

// handleFigures returns both figure descriptors in one shot.
func (s *Server) handleFigures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	figs := s.svc.TimelineFigures()
	writeJSON(w, http.StatusOK, figuresResponse{
		Compact: figs.Compact,
		Full:    figs.Full,
		Visible: figs.Visible,
		Missing: figs.Missing,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session": s.svc.NewSession()})
}

type zoomRequest struct {
	Session string     `json:"session"`
	View    string     `json:"view"`
	X       [2]string  `json:"x"`
	Y       [2]float64 `json:"y"`
}

// handleZoom records (POST) or clears (DELETE) a session's zoom window.
func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req zoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Session == "" {
			http.Error(w, "session is required", http.StatusBadRequest)
			return
		}
		view := timeline.View(req.View)
		if view != timeline.ViewCompact && view != timeline.ViewFull {
			http.Error(w, "view must be compact or full", http.StatusBadRequest)
			return
		}
		s.svc.SetZoomWindow(req.Session, view, viewport.Window{X: req.X, Y: req.Y})
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	case http.MethodDelete:
		session := r.URL.Query().Get("session")
		if session == "" {
			http.Error(w, "session is required", http.StatusBadRequest)
			return
		}
		s.svc.ClearZoom(session)
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type toggleRequest struct {
	Session string `json:"session"`
	Current string `json:"current"`
}

type toggleResponse struct {
	View   string           `json:"view"`
	Window *viewport.Window `json:"window,omitempty"`
}

// handleToggle flips a session between the compact and full views,
// carrying its zoom window across when the tactic spaces allow it.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	current := timeline.View(req.Current)
	if current != timeline.ViewCompact && current != timeline.ViewFull {
		http.Error(w, "current must be compact or full", http.StatusBadRequest)
		return
	}
	next, win := s.svc.ToggleView(req.Session, current)
	writeJSON(w, http.StatusOK, toggleResponse{View: string(next), Window: win})
}

type eventRequest struct {
	store.EventFields
	Actor string `json:"actor"`
}

// handleEvents serves GET (list) and POST (add) on the collection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		events, err := s.svc.ListEvents(r.Context())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	case http.MethodPost:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		event, err := s.svc.AddEvent(r.Context(), req.EventFields, actorOr(req.Actor, r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type annotationRequest struct {
	store.AnnotationFields
	Actor string `json:"actor"`
}

// handleEventByID routes /api/events/{id} and /api/events/{id}/annotations.
func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	idPart, tail, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		event, err := s.svc.GetEvent(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, event)
	case tail == "" && r.Method == http.MethodDelete:
		actor := r.URL.Query().Get("actor")
		if err := s.svc.DeleteEvent(r.Context(), id, actorOr(actor, r)); err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	case tail == "annotations" && r.Method == http.MethodGet:
		notes, err := s.svc.ListAnnotations(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotations": notes, "count": len(notes)})
	case tail == "annotations" && r.Method == http.MethodPost:
		var req annotationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		fields := req.AnnotationFields
		if fields.Author == "" {
			fields.Author = actorOr(req.Actor, r)
		}
		notes, err := s.svc.AddAnnotation(r.Context(), id, fields)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"annotations": notes, "count": len(notes)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.svc.ListAudit(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// writeStoreError maps store errors onto API status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	var nferr *store.NotFoundError
	if errors.As(err, &nferr) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nferr.Error()})
		return
	}
	s.logger.Printf("store error: %v", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
}

// actorOr prefers the explicit actor, falling back to the remote IP.
func actorOr(actor string, r *http.Request) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return remoteIP(r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// remoteIP extracts ip from host:port
func remoteIP(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}

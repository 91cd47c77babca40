package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/Sharonmee/OpenEye/internal/app"
	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"
	"github.com/Sharonmee/OpenEye/internal/store"
	"github.com/Sharonmee/OpenEye/internal/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

// Server is the HTTP + WebSocket API surface for OpenEye.
type Server struct {
	cfg        Config
	supervisor *app.Supervisor
	router     chi.Router
	upgrader   websocket.Upgrader
	logger     logging.Logger
	jobsDB     *sql.DB
}

// NewServer creates a new Server with its own Supervisor and job store.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	// Make sure storage root exists
	storageRoot, err := expandPath(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	cfg.StorageRoot = storageRoot
	err = os.MkdirAll(cfg.StorageRoot, 0755)
	if err != nil {
		logger.Warn("creating storage root directory", logging.Field{Key: "path", Value: cfg.StorageRoot}, logging.Field{Key: "error", Value: err.Error()})
	}

	// Set up job store
	db, err := sql.Open("sqlite", filepath.Join(cfg.StorageRoot, "openeye.db"))
	if err != nil {
		return nil, fmt.Errorf("opening job database: %w", err)
	}

	st, err := store.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job store: %w", err)
	}

	engine := cfg.Engine
	if engine == nil {
		zapCfg := zap.DefaultConfig()
		if cfg.ZAPConfig != nil {
			zapCfg = *cfg.ZAPConfig
		}
		engine = zap.NewClient(zapCfg, logger, nil)
	}

	sup := app.NewSupervisor(cfg.AppConfig, engine, st, logger)

	r := chi.NewRouter()
	s := &Server{
		cfg:        cfg,
		supervisor: sup,
		router:     r,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
		jobsDB: db,
	}

	s.routes()
	return s, nil
}

// Supervisor returns the underlying supervisor for advanced use (tests, etc.).
func (s *Server) Supervisor() *app.Supervisor {
	return s.supervisor
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("GET, POST"))
	r.Options("/scans/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/scans/{jobID}/results", s.optionsHandler("GET"))
	r.Options("/engine/health", s.optionsHandler("GET"))
	r.Options("/ws/scans/{jobID}", s.optionsHandler("GET"))

	// Scans
	r.Post("/scans", s.handleStartScan)
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/{jobID}", s.handleGetScan)
	r.Get("/scans/{jobID}/results", s.handleGetScanResults)
	r.Delete("/scans/{jobID}", s.handleCancelScan)

	// Engine
	r.Get("/engine/health", s.handleEngineHealth)

	// WebSocket for scan progress
	r.Get("/ws/scans/{jobID}", s.handleScanWS)

	// Interactive API docs
	r.Get("/docs/*", httpSwagger.Handler())
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the supervisor and underlying resources.
func (s *Server) Close() {
	if s.supervisor != nil {
		s.supervisor.Close()
	}
	if s.jobsDB != nil {
		s.jobsDB.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scan.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scan.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, scan.ErrNotReady), errors.Is(err, scan.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Warn("internal error", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// owner resolves the caller's identity from the bearer token. The token is
// opaque; every distinct token is its own scan namespace.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		writeError(w, http.StatusUnauthorized, "missing or malformed bearer token")
		return "", false
	}
	return strings.TrimSpace(token), true
}

// --- HTTP handlers ---

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var body StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.supervisor.Submit(r.Context(), owner, body.TargetURL, scan.Tool(body.Tool), scan.Config{
		MaxChildren: body.MaxChildren,
		ScanPolicy:  body.ScanPolicy,
	})
	if err != nil {
		s.logger.Warn("starting scan", logging.Field{Key: "error", Value: err.Error()})
		s.writeDomainError(w, err)
		return
	}

	view, err := s.supervisor.Status(r.Context(), job.ID, owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("started scan", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "target", Value: job.TargetURL})
	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	views, err := s.supervisor.List(r.Context(), owner)
	if err != nil {
		s.logger.Warn("listing scans", logging.Field{Key: "error", Value: err.Error()})
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("listed scans", logging.Field{Key: "count", Value: len(views)})
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	view, err := s.supervisor.Status(r.Context(), jobID, owner)
	if err != nil {
		s.logger.Warn("getting scan", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetScanResults(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	res, err := s.supervisor.Results(r.Context(), jobID, owner)
	if err != nil {
		s.logger.Warn("getting scan results", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("got scan results", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "alert_count", Value: len(res.Alerts)})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	if err := s.supervisor.Cancel(r.Context(), jobID, owner); err != nil {
		s.logger.Warn("cancelling scan", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("cancelled scan", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusOK, CancelScanResponse{Acknowledged: true})
}

func (s *Server) handleEngineHealth(w http.ResponseWriter, r *http.Request) {
	available := s.supervisor.EngineHealth(r.Context())
	writeJSON(w, http.StatusOK, EngineHealthResponse{
		Engine:    string(scan.ToolZAP),
		Available: available,
	})
}

// WebSockets

func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	// Resolve ownership and existence before committing to the upgrade.
	view, err := s.supervisor.Status(r.Context(), jobID, owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	ctx := r.Context()

	// Initial snapshot so the client has state before the first event.
	_ = conn.WriteJSON(view)

	events, active, err := s.supervisor.Watch(ctx, jobID, owner)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	if !active {
		// Run already finished; the snapshot above is the final word.
		return
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Client disconnected. The scan keeps running; watchers are
			// passive observers.
			return
		}
	}

	// Stream closed on a terminal state; send a final snapshot.
	if final, err := s.supervisor.Status(ctx, jobID, owner); err == nil {
		_ = conn.WriteJSON(final)
	}
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}

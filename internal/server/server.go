// Package server exposes the file browser and transfer queue over a
// local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/client"
	"github.com/mhollis/skiff/internal/collect"
	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/conflict"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/queue"
	"github.com/mhollis/skiff/internal/vpath"
)

// uploadFieldName is the multipart field carrying file parts.
const uploadFieldName = "f"

// Server serves the local API in front of the remote backend.
type Server struct {
	core        *client.Client
	cfg         *config.ServerConfig
	broadcaster *Broadcaster
	logger      zerolog.Logger
}

// New creates a server around an assembled client.
func New(core *client.Client, cfg *config.ServerConfig, logger zerolog.Logger) *Server {
	return &Server{
		core:   core,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/fs/list", s.handleList)
	r.Post("/api/fs/action", s.handleAction)
	r.Post("/api/fs/upload", s.handleUpload)
	r.Get("/api/transfers", s.handleTransfers)
	r.Post("/api/transfers/{id}/cancel", s.handleCancel)
	r.Get("/api/transfers/ws", s.handleWS)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.core.Configured() {
		s.broadcaster = NewBroadcaster(s.core.Queue, s.logger)
		go s.broadcaster.Run(ctx)
	}

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"configured": s.core.Configured()}
	if s.core.Configured() {
		status["backend"] = s.core.Config().Backend.BaseURL
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	listing, _, err := s.core.ForwardedClients(r.Header.Get("Cookie"), originHost(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	path := vpath.Normalize(r.URL.Query().Get("path"))
	result := listing.List(r.Context(), path, inboundOrigin(r))
	writeJSON(w, http.StatusOK, result)
}

type actionRequest struct {
	Action          string `json:"action"`
	Path            string `json:"path"`
	NewName         string `json:"newName,omitempty"`
	Name            string `json:"name,omitempty"`
	DestinationPath string `json:"destinationPath,omitempty"`
}

type actionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	_, mutation, err := s.core.ForwardedClients(r.Header.Get("Cookie"), originHost(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "delete":
		err = mutation.Delete(ctx, req.Path)
	case "rename":
		err = mutation.Rename(ctx, req.Path, req.NewName)
	case "move":
		err = mutation.Move(ctx, req.Path, req.DestinationPath)
	case "mkdir":
		err = mutation.Mkdir(ctx, req.Path, req.Name)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}

	if err != nil {
		writeJSON(w, http.StatusOK, actionResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read multipart body: %w", err))
		return
	}

	destPath := vpath.Normalize(r.URL.Query().Get("path"))
	strategy := conflict.Strategy(r.URL.Query().Get("strategy"))
	if strategy == "" {
		strategy = conflict.Rename
	}
	if !strategy.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown conflict strategy %q", strategy))
		return
	}

	collector := collect.NewCollector(s.logger)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read multipart part: %w", err))
			return
		}
		if part.FormName() != uploadFieldName {
			part.Close()
			continue
		}

		// Part.FileName strips directories, so folder drops read the
		// relative path straight from the Content-Disposition header.
		relPath := partFileName(part)

		payload, err := spoolPart(part, relPath)
		part.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("spool upload: %w", err))
			return
		}
		collector.AddWithPath(payload, relPath)
	}

	candidates := collector.Candidates()
	if len(candidates) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files in request"))
		return
	}

	// The current listing of the destination decides what counts as a
	// conflict. A failed listing degrades to an empty name set.
	listing, _, err := s.core.ForwardedClients(r.Header.Get("Cookie"), originHost(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	existing := listing.List(r.Context(), destPath, inboundOrigin(r)).FileNames()

	resolutions := conflict.Resolve(destPath, candidates, existing, strategy)

	s.core.Queue.SetLimit(queue.ConcurrencyFor(r.UserAgent(), s.core.Config().Upload))
	items := s.core.Queue.EnqueueResolutions(resolutions, destPath)

	writeJSON(w, http.StatusAccepted, map[string]any{"items": items})
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.core.Queue.Snapshot()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	if err := s.core.Queue.Cancel(chi.URLParam(r, "id")); err != nil {
		writeJSON(w, http.StatusOK, actionResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{OK: true})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	if s.broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("transfer feed not running"))
		return
	}
	s.broadcaster.Subscribe(w, r)
}

func (s *Server) requireBackend(w http.ResponseWriter) bool {
	if s.core.Configured() {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, models.ErrNotConfigured)
	return false
}

// partFileName extracts the raw filename parameter, which may carry a
// relative path for folder drops.
func partFileName(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return part.FileName()
}

// spoolPart buffers one multipart file part to a temp file so the
// queue can upload it after the inbound request has finished.
func spoolPart(part io.Reader, relPath string) (collect.Payload, error) {
	tmp, err := os.CreateTemp("", "skiff-upload-*")
	if err != nil {
		return nil, err
	}

	size, err := io.Copy(tmp, part)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	name := relPath
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return &spooledPayload{name: name, path: tmp.Name(), size: size, mod: time.Now()}, nil
}

type spooledPayload struct {
	name string
	path string
	size int64
	mod  time.Time
}

func (p *spooledPayload) Name() string       { return p.name }
func (p *spooledPayload) Size() int64        { return p.size }
func (p *spooledPayload) ModTime() time.Time { return p.mod }

func (p *spooledPayload) Open() (io.ReadCloser, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	return &deleteOnClose{File: f, path: p.path}, nil
}

type deleteOnClose struct {
	*os.File
	path string
}

func (d *deleteOnClose) Close() error {
	err := d.File.Close()
	os.Remove(d.path)
	return err
}

// originHost extracts the host of the inbound Origin header, falling
// back to the request host. Cookie forwarding keys off this value.
func originHost(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		if u, err := url.Parse(o); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	host := r.Host
	if u, err := url.Parse("http://" + host); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return host
}

// inboundOrigin is the origin used for loopback rewriting of listing
// links.
func inboundOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

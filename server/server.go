package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/archive"
	"github.com/xhad/docsort/pkg/pipeline"
	"github.com/xhad/docsort/pkg/store"
)

// Organizer runs one batch. *pipeline.Pipeline implements it.
type Organizer interface {
	Run(ctx context.Context, job pipeline.Job, deliver pipeline.DeliverFunc) error
}

type Config struct {
	Port        string
	MaxUploadMB int
}

type Server struct {
	config    Config
	organizer Organizer
	batches   store.Reader
}

func New(config Config, organizer Organizer) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 100
	}
	return &Server{config: config, organizer: organizer}
}

// WithBatches serves recorded batch metadata from r.
func (s *Server) WithBatches(r store.Reader) *Server {
	s.batches = r
	return s
}

// UploadResponse is the JSON body returned by the upload endpoint.
type UploadResponse struct {
	BatchID  string                  `json:"batch_id"`
	Analysis []models.AnalysisResult `json:"analysis"`
	Summary  models.BatchSummary     `json:"summary"`

	// Archive is encoded as base64 by encoding/json.
	Archive []byte `json:"archive"`
}

func responseFor(out *pipeline.Output) UploadResponse {
	return UploadResponse{
		BatchID:  out.BatchID,
		Analysis: out.Analysis,
		Summary:  out.Summary,
		Archive:  out.Archive,
	}
}

// Handler returns the HTTP routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/batches/{id}", s.handleBatch)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the docsort API"})
	})
	return withCORS(mux)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on port %s", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxUploadMB)<<20)
	form, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("[server] received %d files", len(form.files))

	asZip := r.URL.Query().Get("format") == "zip"
	delivered := false
	err = s.organizer.Run(r.Context(), pipeline.Job{Files: form.files, Consent: form.consent},
		func(ctx context.Context, out *pipeline.Output) error {
			delivered = true
			if asZip {
				return writeArchive(w, out.Archive)
			}
			return writeJSON(w, http.StatusOK, responseFor(out))
		})
	if err == nil {
		return
	}
	if delivered {
		log.Printf("[server] failed to deliver result: %v", err)
		return
	}
	writeError(w, statusFor(err), err.Error())
}

// handleBatch lists the metadata recorded for a batch. With x and y query
// parameters the rows are ordered by distance from that point on the map.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusNotImplemented, store.ErrNotPersisted.Error())
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	var (
		rows []store.Row
		err  error
	)
	q := r.URL.Query()
	if q.Has("x") || q.Has("y") {
		x, xerr := strconv.ParseFloat(q.Get("x"), 64)
		y, yerr := strconv.ParseFloat(q.Get("y"), 64)
		if xerr != nil || yerr != nil {
			writeError(w, http.StatusBadRequest, "x and y must both be numbers")
			return
		}
		rows, err = s.batches.Nearest(r.Context(), id, x, y)
	} else {
		rows, err = s.batches.Batch(r.Context(), id)
	}

	switch {
	case errors.Is(err, store.ErrNotPersisted):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		log.Printf("[server] failed to read batch %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to read batch")
	case len(rows) == 0:
		writeError(w, http.StatusNotFound, "batch not found")
	default:
		writeJSON(w, http.StatusOK, rows)
	}
}

func writeArchive(w http.ResponseWriter, data []byte) error {
	w.Header().Set("Content-Type", archive.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", archive.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(data)
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrConsentRequired):
		return http.StatusForbidden
	case errors.Is(err, pipeline.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoExtractableDocuments):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// nginx convention for a client that went away.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if err := writeJSON(w, status, map[string]string{"detail": msg}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Printf("[server] failed to write error response: %v", err)
	}
}

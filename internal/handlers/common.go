package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/batch"
	"github.com/dualforge/tagger/internal/storage"
)

const (
	DefaultMaxImageBytes  = 10 * 1024 * 1024
	DefaultMaxUploadBytes = 100 * 1024 * 1024

	// formOverhead is the allowance for multipart headers and form fields on
	// top of the file itself
	formOverhead = 1024 * 1024
	// multipartMemory is how much of a parsed form is held in memory before
	// spilling to disk
	multipartMemory = 32 << 20
)

type Handler struct {
	ctx            context.Context
	jobs           *storage.JobStore
	generator      batch.Generator
	orchestrator   *batch.Orchestrator
	maxImageBytes  int64
	maxUploadBytes int64
}

type Option func(*Handler)

// WithUploadLimits caps single-image and archive uploads
func WithUploadLimits(maxImageBytes, maxUploadBytes int64) Option {
	return func(h *Handler) {
		if maxImageBytes > 0 {
			h.maxImageBytes = maxImageBytes
		}
		if maxUploadBytes > 0 {
			h.maxUploadBytes = maxUploadBytes
		}
	}
}

// New creates a handler. Batch jobs run detached from their request and are
// cancelled when ctx is done.
func New(ctx context.Context, jobs *storage.JobStore, generator batch.Generator, orchestrator *batch.Orchestrator, opts ...Option) *Handler {
	h := &Handler{
		ctx:            ctx,
		jobs:           jobs,
		generator:      generator,
		orchestrator:   orchestrator,
		maxImageBytes:  DefaultMaxImageBytes,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "kind", apperr.KindOf(err), "err", err)
	} else {
		slog.Warn("Request rejected", "kind", apperr.KindOf(err), "err", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: apperr.KindOf(err)})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Kind: apperr.KindValidation})
}

// readUpload reads the multipart file field ("file", or "files" as the
// browser form sends it) up to limit bytes
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, string, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			return nil, "", apperr.Validation("Failed to read file: "+err.Error(), err)
		}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", apperr.Validation("Failed to read file contents", err)
	}
	if int64(len(data)) > limit {
		return nil, "", apperr.Validation(fmt.Sprintf("File too large (max %dMB)", limit/(1024*1024)), nil)
	}
	return data, header.Filename, nil
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/archive"
	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/storage"
	"github.com/dualforge/tagger/internal/tagging"
)

type tagResponse struct {
	Image  string          `json:"image"`
	Output string          `json:"output"`
	Style  models.TagStyle `json:"style"`
	Text   string          `json:"text"`
}

type batchResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// HandleUpload dispatches on the "mode" form field: single images go to the
// coordinator, archives to a batch job
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, max(h.maxImageBytes, h.maxUploadBytes)+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, apperr.Validation("Failed to read upload: "+err.Error(), err))
		return
	}

	mode, err := models.ParseUploadMode(r.FormValue("mode"))
	if err != nil {
		h.writeError(w, apperr.Validation(err.Error(), err))
		return
	}

	switch mode {
	case models.UploadModeBatch:
		h.HandleBatch(w, r)
	default:
		h.HandleTag(w, r)
	}
}

// HandleTag generates text for one uploaded image
func (h *Handler) HandleTag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	data, filename, err := h.readUpload(w, r, h.maxImageBytes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	style, err := models.ParseTagStyle(r.FormValue("style"))
	if err != nil {
		h.writeError(w, apperr.Validation(err.Error(), err))
		return
	}

	if err := tagging.ValidateImage(data); err != nil {
		h.writeError(w, err)
		return
	}

	result := h.generator.Generate(r.Context(), tagging.UploadedImage(filename, data), style)
	if !result.OK() {
		h.writeError(w, apperr.Wrap(result.Err))
		return
	}

	h.writeJSON(w, http.StatusOK, tagResponse{
		Image:  filename,
		Output: models.CaptionName(filename),
		Style:  style,
		Text:   result.Text,
	})
}

// HandleBatch accepts a ZIP archive and starts a batch job for it
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	data, filename, err := h.readUpload(w, r, h.maxUploadBytes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	style, err := models.ParseTagStyle(r.FormValue("style"))
	if err != nil {
		h.writeError(w, apperr.Validation(err.Error(), err))
		return
	}

	if err := tagging.ValidateArchive(filename, data); err != nil {
		h.writeError(w, err)
		return
	}

	job := h.jobs.Create(filename, style)
	slog.Info("Batch job accepted", "job_id", job.ID, "archive", filename, "bytes", len(data), "style", style)

	go h.runJob(h.ctx, job, data)

	h.writeJSON(w, http.StatusAccepted, batchResponse{
		JobID:   job.ID,
		Message: "Unpacking your ZIP file...",
	})
}

// runJob drives a batch run and records its progress and result in the job store
func (h *Handler) runJob(ctx context.Context, job storage.Job, data []byte) {
	progress := make(chan models.Progress)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			h.jobs.Publish(job.ID, p)
		}
	}()

	outcome, err := h.orchestrator.Run(ctx, data, job.Style, progress)
	close(progress)
	<-drained

	if err != nil {
		slog.Error("Batch job failed", "job_id", job.ID, "kind", apperr.KindOf(err), "err", err)
		h.jobs.Fail(job.ID, string(apperr.KindOf(err)), err.Error())
		return
	}

	h.jobs.Complete(job.ID, archive.DownloadName(job.ArchiveName), outcome.Archive, outcome.Succeeded, outcome.Failed, outcome.Failures)
	slog.Info("Batch job finished", "job_id", job.ID, "succeeded", outcome.Succeeded, "failed", outcome.Failed)
}

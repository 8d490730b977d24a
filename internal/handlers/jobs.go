package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/storage"
)

type jobResponse struct {
	storage.Job
	Events []storage.Event `json:"events"`
}

// HandleJobs lists batch jobs, newest first
func (h *Handler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.jobs.GetAll())
	case http.MethodPost:
		h.HandleBatch(w, r)
	default:
		h.methodNotAllowed(w)
	}
}

// HandleJobDetail serves /api/batch/{id} and /api/batch/{id}/download
func (h *Handler) HandleJobDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batch/")
	jobID, action, _ := strings.Cut(rest, "/")

	job, ok := h.jobs.Get(jobID)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Job not found", Kind: apperr.KindValidation})
		return
	}

	switch {
	case action == "download" && r.Method == http.MethodGet:
		h.download(w, job)
	case action == "" && r.Method == http.MethodGet:
		h.status(w, r, job)
	case action == "" && r.Method == http.MethodDelete:
		h.jobs.Delete(jobID)
		w.WriteHeader(http.StatusNoContent)
	case action != "download" && action != "":
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found", Kind: apperr.KindValidation})
	default:
		h.methodNotAllowed(w)
	}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, job storage.Job) {
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			h.writeError(w, apperr.Validation("since must be a non-negative integer", err))
			return
		}
		since = v
	}

	events := h.jobs.Since(job.ID, since)
	if events == nil {
		events = []storage.Event{}
	}
	h.writeJSON(w, http.StatusOK, jobResponse{Job: job, Events: events})
}

func (h *Handler) download(w http.ResponseWriter, job storage.Job) {
	data, name, ok := h.jobs.Archive(job.ID)
	if !ok {
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("Job is %s, no archive to download", job.Status),
			Kind:  apperr.KindValidation,
		})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write archive", "job_id", job.ID, "err", err)
	}
}

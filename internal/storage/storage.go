package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/dualforge/tagger/internal/models"
	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a batch job
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a snapshot of one batch run
type Job struct {
	ID           string            `json:"id"`
	ArchiveName  string            `json:"archive_name"`
	DownloadName string            `json:"download_name,omitempty"`
	Style        models.TagStyle   `json:"style"`
	Status       JobStatus         `json:"status"`
	Progress     models.Progress   `json:"progress"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Failures     map[string]string `json:"failures,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// Event is a sequenced progress update
type Event struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Progress  models.Progress `json:"progress"`
}

type entry struct {
	job     Job
	archive []byte
	events  []Event
	nextSeq int64
}

// JobStore keeps batch jobs, their progress history and result archives in memory
type JobStore struct {
	jobs      map[string]*entry
	maxEvents int
	mu        sync.RWMutex
}

// New creates a store that retains at most maxEvents progress events per job
func New(maxEvents int) *JobStore {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &JobStore{
		jobs:      make(map[string]*entry),
		maxEvents: maxEvents,
	}
}

// Create registers a running job and returns its snapshot
func (s *JobStore) Create(archiveName string, style models.TagStyle) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{
		ID:          uuid.New().String(),
		ArchiveName: archiveName,
		Style:       style,
		Status:      JobStatusRunning,
		CreatedAt:   time.Now().UTC(),
	}
	s.jobs[job.ID] = &entry{job: job}
	return job
}

func (s *JobStore) Get(jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.jobs[jobID]
	if !exists {
		return Job{}, false
	}
	return e.job, true
}

// GetAll returns every job, newest first
func (s *JobStore) GetAll() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		result = append(result, e.job)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

// Publish records a progress update for the job
func (s *JobStore) Publish(jobID string, p models.Progress) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[jobID]
	if !exists {
		return Event{}, false
	}

	e.nextSeq++
	event := Event{Seq: e.nextSeq, Timestamp: time.Now().UTC(), Progress: p}
	e.events = append(e.events, event)
	if len(e.events) > s.maxEvents {
		trim := len(e.events) - s.maxEvents
		e.events = append([]Event(nil), e.events[trim:]...)
	}
	e.job.Progress = p
	return event, true
}

// Since returns the job's events with sequence strictly greater than seq
func (s *JobStore) Since(jobID string, seq int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.jobs[jobID]
	if !exists || len(e.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(e.events))
	for _, event := range e.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Complete stores the result archive and marks the job done
func (s *JobStore) Complete(jobID, downloadName string, archive []byte, succeeded, failed int, failures map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[jobID]
	if !exists {
		return
	}
	now := time.Now().UTC()
	e.archive = archive
	e.job.Status = JobStatusDone
	e.job.DownloadName = downloadName
	e.job.Succeeded = succeeded
	e.job.Failed = failed
	e.job.Failures = failures
	e.job.FinishedAt = &now
}

// Fail marks the job failed; no archive is kept
func (s *JobStore) Fail(jobID, kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[jobID]
	if !exists {
		return
	}
	now := time.Now().UTC()
	e.archive = nil
	e.job.Status = JobStatusFailed
	e.job.Error = message
	e.job.ErrorKind = kind
	e.job.FinishedAt = &now
}

// Archive returns the result archive of a finished job
func (s *JobStore) Archive(jobID string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.jobs[jobID]
	if !exists || e.job.Status != JobStatusDone {
		return nil, "", false
	}
	return e.archive, e.job.DownloadName, true
}

func (s *JobStore) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Prune removes finished jobs older than maxAge and returns how many were removed
func (s *JobStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, e := range s.jobs {
		if e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

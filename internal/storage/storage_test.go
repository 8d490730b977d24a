package storage

import (
	"testing"
	"time"

	"github.com/dualforge/tagger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	store := New(10)
	job := store.Create("photos.zip", models.TagStyleFlux)

	require.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusRunning, job.Status)

	_, _, ok := store.Archive(job.ID)
	assert.False(t, ok, "running job has no archive")

	store.Publish(job.ID, models.Progress{Phase: models.PhaseGenerating, Processed: 1, Total: 2})
	got, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, 1, got.Progress.Processed)

	store.Complete(job.ID, "photos-tags.zip", []byte("zip"), 1, 1, map[string]string{"b.png": "quota exceeded"})

	data, name, ok := store.Archive(job.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("zip"), data)
	assert.Equal(t, "photos-tags.zip", name)

	got, _ = store.Get(job.ID)
	assert.Equal(t, JobStatusDone, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestFailedJobHasNoArchive(t *testing.T) {
	store := New(10)
	job := store.Create("photos.zip", models.TagStyleFlux)

	store.Fail(job.ID, "empty_input", "no valid images found in the archive")

	_, _, ok := store.Archive(job.ID)
	assert.False(t, ok)

	got, _ := store.Get(job.ID)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "empty_input", got.ErrorKind)
}

func TestEventsSince(t *testing.T) {
	store := New(3)
	job := store.Create("a.zip", models.TagStyleFlux)

	for i := 1; i <= 4; i++ {
		store.Publish(job.ID, models.Progress{Processed: i})
	}

	events := store.Since(job.ID, 0)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, 4, events[2].Progress.Processed)

	events = store.Since(job.ID, 3)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Seq)

	assert.Nil(t, store.Since("missing", 0))
	_, ok := store.Publish("missing", models.Progress{})
	assert.False(t, ok)
}

func TestPrune(t *testing.T) {
	store := New(10)
	done := store.Create("a.zip", models.TagStyleFlux)
	running := store.Create("b.zip", models.TagStyleFlux)
	store.Complete(done.ID, "a-tags.zip", nil, 0, 0, nil)

	assert.Equal(t, 0, store.Prune(time.Hour))
	assert.Equal(t, 1, store.Prune(-time.Second))

	_, ok := store.Get(done.ID)
	assert.False(t, ok)
	_, ok = store.Get(running.ID)
	assert.True(t, ok)
	assert.Len(t, store.GetAll(), 1)
}

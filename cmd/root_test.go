package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["tag"])
	assert.True(t, names["batch"])
}

func TestTagRejectsUnknownStyle(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"tag", "photo.jpg", "--style", "anime"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid style")
}

func TestBatchRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	root := NewRootCmd()
	root.SetArgs([]string{"batch", path})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestPrintProgress(t *testing.T) {
	progress := make(chan models.Progress, 3)
	progress <- models.Progress{Phase: models.PhaseUnpacking, Message: "Unpacking your ZIP file..."}
	progress <- models.Progress{Phase: models.PhaseGenerating, Processed: 1, Total: 2, Message: "Processing image 1 of 2..."}
	close(progress)

	var out bytes.Buffer
	printProgress(&out, progress)

	assert.Equal(t, "[unpacking] Unpacking your ZIP file...\n[generating 1/2] Processing image 1 of 2...\n", out.String())
}

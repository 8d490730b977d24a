package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dualforge/tagger/internal/batch"
	"github.com/dualforge/tagger/internal/models"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleOutcome() *batch.Outcome {
	return &batch.Outcome{
		Files: models.OutputArchive{
			"b.txt": "1girl, smile",
			"a.txt": "1boy, armor",
		},
		Sources: map[string]string{
			"b.txt": "b.png",
			"a.txt": "a.jpg",
		},
		Failures:  map[string]string{"c.webp": "quota exceeded"},
		Total:     3,
		Succeeded: 2,
		Failed:    1,
	}
}

func TestParquetRoundTrip(t *testing.T) {
	rows := Rows(sampleOutcome(), models.TagStyleIllustrious)
	require.Equal(t, []CaptionRow{
		{FileName: "a.jpg", Text: "1boy, armor", Style: "illustrious"},
		{FileName: "b.png", Text: "1girl, smile", Style: "illustrious"},
	}, rows)

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, rows))

	got, err := parquet.Read[CaptionRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestSaveParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.parquet")
	require.NoError(t, SaveParquet(path, sampleOutcome(), models.TagStyleFlux))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestReport(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	report := NewReport("photos.zip", models.TagStyleFlux, sampleOutcome(), now)

	assert.Equal(t, "2026-10-17T12:00:00Z", report.Timestamp)
	assert.Equal(t, []ReportOutput{{Image: "a.jpg", Output: "a.txt"}, {Image: "b.png", Output: "b.txt"}}, report.Outputs)
	assert.Equal(t, []ReportFailure{{Image: "c.webp", Reason: "quota exceeded"}}, report.Failures)

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, SaveReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Report
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, report, loaded)
}

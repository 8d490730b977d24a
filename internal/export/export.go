package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dualforge/tagger/internal/batch"
	"github.com/dualforge/tagger/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// CaptionRow is one image/caption pair in the image-folder metadata layout
// used by Hugging Face datasets
type CaptionRow struct {
	FileName string `parquet:"file_name"`
	Text     string `parquet:"text"`
	Style    string `parquet:"style"`
}

// Rows flattens a batch outcome into caption rows sorted by image name
func Rows(outcome *batch.Outcome, style models.TagStyle) []CaptionRow {
	rows := make([]CaptionRow, 0, len(outcome.Files))
	for name, text := range outcome.Files {
		source := outcome.Sources[name]
		if source == "" {
			source = name
		}
		rows = append(rows, CaptionRow{FileName: source, Text: text, Style: string(style)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].FileName < rows[j].FileName })
	return rows
}

// WriteParquet writes caption rows as a parquet file
func WriteParquet(w io.Writer, rows []CaptionRow) error {
	writer := parquet.NewGenericWriter[CaptionRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// SaveParquet writes the batch captions to path
func SaveParquet(path string, outcome *batch.Outcome, style models.TagStyle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer f.Close()

	if err := WriteParquet(f, Rows(outcome, style)); err != nil {
		return err
	}
	return f.Close()
}

// Report summarizes a batch run
type Report struct {
	Archive   string          `yaml:"archive"`
	Style     string          `yaml:"style"`
	Timestamp string          `yaml:"timestamp"`
	Total     int             `yaml:"total"`
	Succeeded int             `yaml:"succeeded"`
	Failed    int             `yaml:"failed"`
	Outputs   []ReportOutput  `yaml:"outputs,omitempty"`
	Failures  []ReportFailure `yaml:"failures,omitempty"`
}

type ReportOutput struct {
	Image  string `yaml:"image"`
	Output string `yaml:"output"`
}

type ReportFailure struct {
	Image  string `yaml:"image"`
	Reason string `yaml:"reason"`
}

// NewReport builds a report for a finished batch
func NewReport(archiveName string, style models.TagStyle, outcome *batch.Outcome, now time.Time) Report {
	report := Report{
		Archive:   archiveName,
		Style:     string(style),
		Timestamp: now.Format(time.RFC3339),
		Total:     outcome.Total,
		Succeeded: outcome.Succeeded,
		Failed:    outcome.Failed,
	}

	for output, image := range outcome.Sources {
		report.Outputs = append(report.Outputs, ReportOutput{Image: image, Output: output})
	}
	sort.Slice(report.Outputs, func(i, j int) bool { return report.Outputs[i].Output < report.Outputs[j].Output })

	for image, reason := range outcome.Failures {
		report.Failures = append(report.Failures, ReportFailure{Image: image, Reason: reason})
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Image < report.Failures[j].Image })

	return report
}

// SaveReport writes the report as YAML
func SaveReport(path string, report Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

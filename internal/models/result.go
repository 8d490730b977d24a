package models

import (
	"path"
	"strings"
)

// Result is the outcome of tagging one image: generated text on success,
// or the error that stopped it.
type Result struct {
	Text string
	Err  error
}

// Text wraps generated text in a successful Result
func Text(s string) Result {
	return Result{Text: s}
}

// Failed wraps an error in a failed Result
func Failed(err error) Result {
	return Result{Err: err}
}

// OK reports whether the result carries generated text
func (r Result) OK() bool {
	return r.Err == nil
}

// Failure returns the user-presentable failure reason, or "" for a successful result
func (r Result) Failure() string {
	if r.Err == nil {
		return ""
	}
	msg := r.Err.Error()
	if msg == "" {
		return "an unknown error occurred while generating tags"
	}
	return msg
}

// OutputArchive maps derived text filenames to generated text
type OutputArchive map[string]string

// CaptionName derives the output filename for an image: the last extension is
// replaced with ".txt", directories are kept.
func CaptionName(imageName string) string {
	ext := path.Ext(imageName)
	return strings.TrimSuffix(imageName, ext) + ".txt"
}

// Phase labels a batch run's position in its pipeline
type Phase string

const (
	PhaseUnpacking   Phase = "unpacking"
	PhaseGenerating  Phase = "generating"
	PhaseCompressing Phase = "compressing"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Progress is a snapshot of a batch run, emitted on every phase change and
// after every image completes
type Progress struct {
	Phase     Phase  `json:"phase" yaml:"phase"`
	Processed int    `json:"processed" yaml:"processed"`
	Total     int    `json:"total" yaml:"total"`
	Message   string `json:"message" yaml:"message"`
}

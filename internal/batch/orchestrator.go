package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/archive"
	"github.com/dualforge/tagger/internal/models"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency caps simultaneous inference calls per batch
const DefaultConcurrency = 4

// Generator tags a single image. Implementations report failures through the
// Result rather than an error.
type Generator interface {
	Generate(ctx context.Context, image models.SourceImage, style models.TagStyle) models.Result
}

// CollisionPolicy decides what happens when two images derive the same output name
type CollisionPolicy string

const (
	// CollisionOverwrite keeps the last image's text
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionSuffix renames later entries to name-2.txt, name-3.txt, ...
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionError aborts the batch
	CollisionError CollisionPolicy = "error"
)

// ParseCollisionPolicy validates a policy string, defaulting to suffix when empty
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionSuffix:
		return CollisionSuffix, nil
	case CollisionOverwrite:
		return CollisionOverwrite, nil
	case CollisionError:
		return CollisionError, nil
	default:
		return "", fmt.Errorf("invalid collision policy %q. Must be 'suffix', 'overwrite', or 'error'", s)
	}
}

// Orchestrator runs every image in an archive through a Generator and packs
// the successful results into a new archive
type Orchestrator struct {
	generator   Generator
	concurrency int
	collisions  CollisionPolicy
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConcurrency caps in-flight Generate calls; values below 1 use the default
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithCollisionPolicy sets how duplicate output names are handled
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.collisions = p
		}
	}
}

// New returns an Orchestrator
func New(generator Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:   generator,
		concurrency: DefaultConcurrency,
		collisions:  CollisionSuffix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outcome is the result of a completed batch
type Outcome struct {
	Archive   []byte
	Files     models.OutputArchive
	Total     int
	Succeeded int
	Failed    int
	// Failures maps image names to the reason they were left out
	Failures map[string]string
	// Sources maps output names back to the image each was generated from
	Sources map[string]string
}

// Run unpacks data, tags every recognized image, and encodes the results.
// Progress snapshots are sent on progress when it is non-nil; the channel is
// not closed. Per-image failures are excluded from the archive; decode errors,
// empty input, cancellation and anything unexpected abort the batch.
func (o *Orchestrator) Run(ctx context.Context, data []byte, style models.TagStyle, progress chan<- models.Progress) (outcome *Outcome, err error) {
	r := &run{ctx: ctx, progress: progress}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Recovered from panic during batch", "panic", rec)
			outcome, err = nil, apperr.Unknown(fmt.Errorf("panic: %v", rec))
		}
		if err != nil {
			r.emit(models.Progress{Phase: models.PhaseFailed, Processed: r.processed, Total: r.total, Message: err.Error()})
		}
	}()

	r.emit(models.Progress{Phase: models.PhaseUnpacking, Message: "Unpacking your ZIP file..."})

	entries, err := archive.Decode(data)
	if err != nil {
		return nil, err
	}
	images := archive.FilterImages(entries)
	if len(images) == 0 {
		return nil, apperr.EmptyInput()
	}
	r.total = len(images)

	slog.Info("Starting batch", "images", len(images), "ignored", len(entries)-len(images), "style", style, "concurrency", o.concurrency)
	r.emit(models.Progress{Phase: models.PhaseGenerating, Total: r.total, Message: fmt.Sprintf("Generating tags for %d images...", r.total)})

	results := o.generate(r, images, style)
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unknown(fmt.Errorf("batch cancelled: %w", err))
	}

	outcome, err = o.assemble(images, results)
	if err != nil {
		return nil, err
	}

	r.emit(models.Progress{Phase: models.PhaseCompressing, Processed: r.processed, Total: r.total, Message: "Compressing your new ZIP file..."})

	outcome.Archive, err = archive.Encode(outcome.Files)
	if err != nil {
		return nil, apperr.Unknown(err)
	}

	slog.Info("Batch complete", "images", outcome.Total, "succeeded", outcome.Succeeded, "failed", outcome.Failed, "bytes", len(outcome.Archive))
	r.emit(models.Progress{
		Phase:     models.PhaseDone,
		Processed: r.processed,
		Total:     r.total,
		Message:   fmt.Sprintf("Tagged %d of %d images", outcome.Succeeded, outcome.Total),
	})
	return outcome, nil
}

// generate fans out one goroutine per image, at most o.concurrency running
// inference at a time
func (o *Orchestrator) generate(r *run, images []archive.Entry, style models.TagStyle) []models.Result {
	sem := semaphore.NewWeighted(int64(o.concurrency))
	results := make([]models.Result, len(images))

	var wg sync.WaitGroup
	for i, entry := range images {
		wg.Add(1)
		go func(i int, entry archive.Entry) {
			defer wg.Done()
			results[i] = o.generateOne(r.ctx, sem, entry, style)
			if !results[i].OK() {
				slog.Warn("Failed to process image", "image", entry.Name, "err", results[i].Failure())
			}
			r.complete()
		}(i, entry)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) generateOne(ctx context.Context, sem *semaphore.Weighted, entry archive.Entry, style models.TagStyle) (result models.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = models.Failed(apperr.Unknown(fmt.Errorf("panic: %v", rec)))
		}
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		return models.Failed(apperr.Unknown(err))
	}
	defer sem.Release(1)

	return o.generator.Generate(ctx, models.NewSourceImage(entry.Name, entry.Data), style)
}

func (o *Orchestrator) assemble(images []archive.Entry, results []models.Result) (*Outcome, error) {
	outcome := &Outcome{
		Files:    make(models.OutputArchive),
		Total:    len(images),
		Failures: make(map[string]string),
		Sources:  make(map[string]string),
	}

	for i, entry := range images {
		result := results[i]
		if !result.OK() {
			outcome.Failed++
			outcome.Failures[entry.Name] = result.Failure()
			continue
		}

		name := models.CaptionName(entry.Name)
		if prev, taken := outcome.Sources[name]; taken {
			switch o.collisions {
			case CollisionError:
				return nil, apperr.Validation(fmt.Sprintf("%s and %s both produce %s", prev, entry.Name, name), nil)
			case CollisionSuffix:
				name = uniqueName(name, outcome.Sources)
			default:
				slog.Warn("Overwriting output entry", "name", name, "previous", prev, "image", entry.Name)
				outcome.Succeeded--
				outcome.Failed++
				outcome.Failures[prev] = fmt.Sprintf("output %s overwritten by %s", name, entry.Name)
			}
		}

		outcome.Files[name] = result.Text
		outcome.Sources[name] = entry.Name
		outcome.Succeeded++
	}

	return outcome, nil
}

func uniqueName(name string, taken map[string]string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// run holds the per-batch progress state. processed is only touched under mu,
// which also keeps progress messages in counter order.
type run struct {
	ctx      context.Context
	progress chan<- models.Progress

	mu        sync.Mutex
	processed int
	total     int
}

func (r *run) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed++
	r.emit(models.Progress{
		Phase:     models.PhaseGenerating,
		Processed: r.processed,
		Total:     r.total,
		Message:   fmt.Sprintf("Processing image %d of %d...", r.processed, r.total),
	})
}

func (r *run) emit(p models.Progress) {
	if r.progress == nil {
		return
	}
	select {
	case r.progress <- p:
	case <-r.ctx.Done():
	}
}

package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/preprocess"
	"github.com/dualforge/tagger/internal/providers"
)

// DefaultTimeout bounds one inference attempt
const DefaultTimeout = 2 * time.Minute

// Service generates captions or tags for single images. It tries the local
// provider first and falls back to the remote one.
type Service struct {
	local   providers.Provider
	remote  providers.Provider
	prompts Prompts
	resizer *preprocess.Resizer
	timeout time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithPrompts replaces the instruction text per style
func WithPrompts(p Prompts) Option {
	return func(s *Service) {
		s.prompts = p
	}
}

// WithResizer downscales images before inference
func WithResizer(r *preprocess.Resizer) Option {
	return func(s *Service) {
		s.resizer = r
	}
}

// WithTimeout bounds each inference attempt; zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService builds a Service. Either provider may be nil.
func NewService(local, remote providers.Provider, opts ...Option) *Service {
	s := &Service{
		local:   local,
		remote:  remote,
		prompts: DefaultPrompts(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces text for one image. It never returns an error or panics:
// every failure comes back as a failed Result with a non-empty message.
func (s *Service) Generate(ctx context.Context, image models.SourceImage, style models.TagStyle) (result models.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while generating tags", "image", image.Name, "panic", r)
			result = models.Failed(apperr.Unknown(fmt.Errorf("panic: %v", r)))
		}
	}()

	instruction, ok := s.prompts[style]
	if !ok {
		return models.Failed(apperr.Validation(fmt.Sprintf("unsupported tag style %q", style), nil))
	}

	image = s.resizer.Fit(image)

	var failures []error
	for _, p := range []providers.Provider{s.local, s.remote} {
		if p == nil {
			continue
		}

		text, tried, err := s.attempt(ctx, p, image, instruction)
		if !tried {
			slog.Debug("Provider unavailable", "provider", p.Name(), "image", image.Name)
			continue
		}
		if err != nil {
			slog.Warn("Failed to generate tags", "provider", p.Name(), "image", image.Name, "err", err)
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		slog.Info("Generated tags", "provider", p.Name(), "image", image.Name, "style", style, "length", len(text))
		return models.Text(text)
	}

	if len(failures) == 0 {
		return models.Failed(apperr.Inference("no inference provider is available", nil))
	}
	return models.Failed(apperr.Inference("failed to generate tags", errors.Join(failures...)))
}

// attempt runs one provider. tried is false when the provider reported itself
// unavailable, in which case nothing was opened.
func (s *Service) attempt(ctx context.Context, p providers.Provider, image models.SourceImage, instruction string) (text string, tried bool, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	availability, err := p.Availability(ctx)
	if err != nil {
		return "", true, fmt.Errorf("availability check failed: %w", err)
	}
	if availability == providers.Unavailable {
		return "", false, nil
	}

	session, err := p.Open(ctx)
	if err != nil {
		return "", true, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			slog.Warn("Failed to close session", "provider", p.Name(), "err", cerr)
		}
	}()

	raw, err := session.Prompt(ctx, image, instruction)
	if err != nil {
		return "", true, err
	}

	text = Normalize(raw)
	if text == "" {
		return "", true, fmt.Errorf("empty response from %s", p.Name())
	}
	return text, true, nil
}

// Normalize trims whitespace and markdown code fences and lowercases the
// output, since both styles ask for lowercase text.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.Contains(text[:i], " ") {
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// UploadedImage builds the SourceImage for a single upload. The mime type comes
// from the content when it sniffs as an image, so names without an extension
// (or with the wrong one) still reach the provider with a usable type.
func UploadedImage(name string, data []byte) models.SourceImage {
	img := models.NewSourceImage(name, data)
	if detected := preprocess.DetectMimeType(data); strings.HasPrefix(detected, "image/") {
		img.MimeType = detected
	}
	return img
}

// ValidateImage rejects uploads that do not sniff as an image
func ValidateImage(data []byte) error {
	if len(data) == 0 || !preprocess.IsImage(data) {
		return apperr.Validation("Please upload a valid image file (PNG, JPG, etc.).", nil)
	}
	return nil
}

// ValidateArchive rejects uploads that are neither named nor shaped like a ZIP file
func ValidateArchive(name string, data []byte) error {
	if strings.HasSuffix(strings.ToLower(name), ".zip") || preprocess.IsZip(data) {
		return nil
	}
	return apperr.Validation("Please upload a valid ZIP file.", nil)
}

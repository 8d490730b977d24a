package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dualforge/tagger/internal/models"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// Resizer shrinks images whose longest side exceeds MaxDimension before they
// are sent for inference. A zero MaxDimension disables resizing.
type Resizer struct {
	MaxDimension int
	Quality      int
}

// NewResizer returns a resizer with the default JPEG quality
func NewResizer(maxDimension int) *Resizer {
	return &Resizer{
		MaxDimension: maxDimension,
		Quality:      90,
	}
}

// Fit returns img unchanged when it is small enough or cannot be decoded,
// otherwise a JPEG re-encoding that fits within MaxDimension.
func (r *Resizer) Fit(img models.SourceImage) models.SourceImage {
	if r == nil || r.MaxDimension <= 0 {
		return img
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		slog.Debug("Skipping resize, unable to read image header", "name", img.Name, "err", err)
		return img
	}
	if cfg.Width <= r.MaxDimension && cfg.Height <= r.MaxDimension {
		return img
	}

	resized, err := r.resize(img.Data)
	if err != nil {
		slog.Warn("Failed to resize image, sending original", "name", img.Name, "err", err)
		return img
	}

	slog.Debug("Resized image", "name", img.Name, "width", cfg.Width, "height", cfg.Height, "max", r.MaxDimension, "bytes", len(resized))
	return models.SourceImage{
		Name:     img.Name,
		MimeType: "image/jpeg",
		Data:     resized,
	}
}

func (r *Resizer) resize(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	dst := imaging.Fit(src, r.MaxDimension, r.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(r.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectMimeType sniffs the content type from the leading bytes
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsImage reports whether the content sniffs as an image
func IsImage(data []byte) bool {
	return strings.HasPrefix(DetectMimeType(data), "image/")
}

// IsZip reports whether the content sniffs as a ZIP container, including
// ZIP-based formats such as jar or docx
func IsZip(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

package providers

import (
	"context"
	"time"

	"github.com/dualforge/tagger/internal/models"
)

// Availability reports whether a provider can serve requests right now
type Availability string

const (
	Available    Availability = "available"
	Downloadable Availability = "downloadable"
	Unavailable  Availability = "unavailable"
)

// Config represents the configuration for a vision provider
type Config struct {
	Model       string
	Temperature float64
	// KeepAlive is how long a local model stays loaded while a session is open
	KeepAlive time.Duration
}

// Session is a scoped handle on a provider. It must be closed after use.
type Session interface {
	Prompt(ctx context.Context, image models.SourceImage, instruction string) (string, error)
	Close() error
}

// Provider defines the interface for an image-to-text provider
type Provider interface {
	Name() string
	Availability(ctx context.Context) (Availability, error)
	Open(ctx context.Context) (Session, error)
}

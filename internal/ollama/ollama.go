package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/providers"
)

// DefaultURL is where a local Ollama daemon listens unless configured otherwise
const DefaultURL = "http://localhost:11434"

// Ollama is the on-device provider backed by a local Ollama daemon
type Ollama struct {
	baseURL    string
	config     providers.Config
	httpClient *http.Client

	// available caches the last probe that found the model on the daemon
	available atomic.Bool

	// mu serializes loading and unloading. Sessions share one loaded model,
	// which is unloaded when the last of them closes.
	mu       sync.Mutex
	sessions int
}

// New returns a new Ollama provider
func New(baseURL string, config providers.Config) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 5 * time.Minute
	}
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		config:     config,
		httpClient: &http.Client{},
	}
}

func (o *Ollama) Name() string {
	return "ollama"
}

// Availability checks whether the daemon is reachable and already has the model
func (o *Ollama) Availability(ctx context.Context) (providers.Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return providers.Unavailable, fmt.Errorf("failed to create new request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		slog.Debug("Ollama not reachable", "url", o.baseURL, "err", err)
		return providers.Unavailable, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.Unavailable, nil
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return providers.Unavailable, fmt.Errorf("failed to decode tags response: %w", err)
	}

	for _, m := range tags.Models {
		if sameModel(m.Name, o.config.Model) || sameModel(m.Model, o.config.Model) {
			o.available.Store(true)
			return providers.Available, nil
		}
	}
	o.available.Store(false)
	return providers.Downloadable, nil
}

// Open acquires a session on the model. The first open session loads it,
// pulling it first when the daemon does not have it yet; later sessions reuse
// the loaded model.
func (o *Ollama) Open(ctx context.Context) (providers.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sessions == 0 {
		if err := o.load(ctx); err != nil {
			return nil, err
		}
	}
	o.sessions++

	return &session{ollama: o}, nil
}

// load makes the model resident. Callers hold o.mu.
func (o *Ollama) load(ctx context.Context) error {
	if !o.available.Load() {
		availability, err := o.Availability(ctx)
		if err != nil {
			return err
		}

		switch availability {
		case providers.Unavailable:
			return fmt.Errorf("ollama is not reachable at %s", o.baseURL)
		case providers.Downloadable:
			slog.Info("Pulling model", "provider", o.Name(), "model", o.config.Model)
			if err := o.post(ctx, "/api/pull", map[string]any{
				"model":  o.config.Model,
				"stream": false,
			}, nil); err != nil {
				return fmt.Errorf("failed to pull model %s: %w", o.config.Model, err)
			}
			o.available.Store(true)
		}
	}

	// a generate request without a prompt only loads the model
	if err := o.post(ctx, "/api/generate", map[string]any{
		"model":      o.config.Model,
		"keep_alive": o.config.KeepAlive.String(),
	}, nil); err != nil {
		o.available.Store(false)
		return fmt.Errorf("failed to load model %s: %w", o.config.Model, err)
	}
	slog.Debug("Loaded model", "provider", o.Name(), "model", o.config.Model)
	return nil
}

// release drops one session and unloads the model once none remain. It runs
// on its own context so a cancelled request still releases the model.
func (o *Ollama) release() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessions--
	if o.sessions > 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Debug("Unloading model", "provider", o.Name(), "model", o.config.Model)
	return o.post(ctx, "/api/generate", map[string]any{
		"model":      o.config.Model,
		"keep_alive": 0,
	}, nil)
}

type session struct {
	ollama *Ollama
	once   sync.Once
}

// Prompt sends the image and instruction to the loaded model
func (s *session) Prompt(ctx context.Context, image models.SourceImage, instruction string) (string, error) {
	requestBody := map[string]any{
		"model":      s.ollama.config.Model,
		"prompt":     instruction,
		"images":     []string{base64.StdEncoding.EncodeToString(image.Data)},
		"stream":     false,
		"keep_alive": s.ollama.config.KeepAlive.String(),
		"options": map[string]any{
			"temperature": s.ollama.config.Temperature,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := s.ollama.post(ctx, "/api/generate", requestBody, &response); err != nil {
		return "", err
	}

	return response.Response, nil
}

// Close releases the session; closing twice is a no-op
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ollama.release()
	})
	return err
}

func (o *Ollama) post(ctx context.Context, path string, body any, out any) error {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// sameModel compares model names, treating a missing tag as ":latest"
func sameModel(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return withTag(a) == withTag(b)
}

func withTag(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

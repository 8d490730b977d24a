package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/providers"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

// Gemini is a remote provider for Google Gemini
type Gemini struct {
	apiKey string
	config providers.Config
	opts   []option.ClientOption
}

// New returns a new Gemini provider. The API key is supplied by the caller
// rather than read from the environment here.
func New(apiKey string, config providers.Config, opts ...option.ClientOption) *Gemini {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &Gemini{
		apiKey: apiKey,
		config: config,
		opts:   opts,
	}
}

func (g *Gemini) Name() string {
	return "gemini"
}

// Availability is decided by credentials alone; the API is not probed
func (g *Gemini) Availability(ctx context.Context) (providers.Availability, error) {
	if g.apiKey == "" {
		return providers.Unavailable, nil
	}
	return providers.Available, nil
}

// Open creates a client that lives for the duration of the session
func (g *Gemini) Open(ctx context.Context) (providers.Session, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	model := client.GenerativeModel(g.config.Model)
	model.SetTemperature(float32(g.config.Temperature))

	return &session{client: client, model: model}, nil
}

type session struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// Prompt sends the image inline followed by the instruction text
func (s *session) Prompt(ctx context.Context, image models.SourceImage, instruction string) (string, error) {
	format := image.Format()
	if format == "" {
		return "", fmt.Errorf("unsupported image type %q", image.MimeType)
	}

	resp, err := s.model.GenerateContent(ctx,
		genai.ImageData(format, image.Data),
		genai.Text(instruction),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

func (s *session) Close() error {
	return s.client.Close()
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}

	return sb.String(), nil
}

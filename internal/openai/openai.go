package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/providers"
)

const (
	DefaultURL   = "https://api.openai.com/v1"
	DefaultModel = "gpt-4o"
)

// OpenAI is a remote provider for OpenAI chat completions with image input
type OpenAI struct {
	apiKey     string
	baseURL    string
	config     providers.Config
	httpClient *http.Client
}

// New returns a new OpenAI provider
func New(apiKey, baseURL string, config providers.Config) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		config:     config,
		httpClient: &http.Client{},
	}
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Availability(ctx context.Context) (providers.Availability, error) {
	if o.apiKey == "" {
		return providers.Unavailable, nil
	}
	return providers.Available, nil
}

// Open returns a session; the HTTP API is stateless so there is nothing to acquire
func (o *OpenAI) Open(ctx context.Context) (providers.Session, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	return o, nil
}

func (o *OpenAI) Close() error {
	return nil
}

// Prompt sends the instruction and the image as a data URL
func (o *OpenAI) Prompt(ctx context.Context, image models.SourceImage, instruction string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", image.MimeType, base64.StdEncoding.EncodeToString(image.Data))

	requestBody, err := json.Marshal(map[string]any{
		"model": o.config.Model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "text",
						"text": instruction,
					},
					{
						"type":      "image_url",
						"image_url": map[string]string{"url": dataURL},
					},
				},
			},
		},
		"max_tokens":  1000,
		"temperature": o.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

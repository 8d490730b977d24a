package config

import (
	"testing"
	"time"

	"github.com/dualforge/tagger/internal/batch"
	"github.com/dualforge/tagger/internal/gemini"
	"github.com/dualforge/tagger/internal/ollama"
	"github.com/dualforge/tagger/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TAGGER_PORT", "LOCAL_PROVIDER", "REMOTE_PROVIDER", "OLLAMA_URL", "OLLAMA_HOST",
		"OLLAMA_MODEL", "GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY",
		"OPENAI_URL", "OPENAI_MODEL", "TAGGER_CONCURRENCY", "TAGGER_INFERENCE_TIMEOUT",
		"TAGGER_MAX_DIMENSION", "TAGGER_COLLISIONS", "TAGGER_STYLES_FILE",
		"MAX_UPLOAD_BYTES", "MAX_IMAGE_BYTES", "TAGGER_TEMPERATURE", "TAGGER_JOB_RETENTION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, int64(100*1024*1024), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "ollama", cfg.Providers.Local)
	assert.Equal(t, "gemini", cfg.Providers.Remote)
	assert.Equal(t, ollama.DefaultURL, cfg.Providers.OllamaURL)
	assert.Equal(t, gemini.DefaultModel, cfg.Providers.GeminiModel)
	assert.Equal(t, batch.DefaultConcurrency, cfg.Tagging.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Tagging.InferenceTimeout)
	assert.Equal(t, "suffix", cfg.Tagging.Collisions)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TAGGER_PORT", "9000")
	t.Setenv("OLLAMA_HOST", "http://gpu:11434")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("REMOTE_PROVIDER", "OpenAI")
	t.Setenv("TAGGER_CONCURRENCY", "8")
	t.Setenv("TAGGER_INFERENCE_TIMEOUT", "30s")
	t.Setenv("TAGGER_MAX_DIMENSION", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "http://gpu:11434", cfg.Providers.OllamaURL)
	assert.Equal(t, "legacy-key", cfg.Providers.GeminiAPIKey)
	assert.Equal(t, "openai", cfg.Providers.Remote)
	assert.Equal(t, openai.DefaultURL, cfg.Providers.OpenAIURL)
	assert.Equal(t, 8, cfg.Tagging.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Tagging.InferenceTimeout)
	assert.Equal(t, 1536, cfg.Tagging.MaxDimension)
}

func TestProviderSelection(t *testing.T) {
	tests := []struct {
		name       string
		local      string
		remote     string
		wantLocal  string
		wantRemote string
		wantErr    bool
	}{
		{name: "default pair", local: "ollama", remote: "gemini", wantLocal: "ollama", wantRemote: "gemini"},
		{name: "remote only", local: "none", remote: "openai", wantRemote: "openai"},
		{name: "local only", local: "ollama", remote: "none", wantLocal: "ollama"},
		{name: "unknown remote", local: "ollama", remote: "claude", wantErr: true},
		{name: "nothing configured", local: "none", remote: "none", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Providers: ProvidersConfig{Local: tt.local, Remote: tt.remote},
				Tagging:   TaggingConfig{InferenceTimeout: time.Second, MaxDimension: 512},
			}

			svc, err := cfg.NewTaggingService()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)

			local, err := cfg.LocalProvider()
			require.NoError(t, err)
			if tt.wantLocal == "" {
				assert.Nil(t, local)
			} else {
				assert.Equal(t, tt.wantLocal, local.Name())
			}

			remote, err := cfg.RemoteProvider()
			require.NoError(t, err)
			if tt.wantRemote == "" {
				assert.Nil(t, remote)
			} else {
				assert.Equal(t, tt.wantRemote, remote.Name())
			}
		})
	}
}

func TestNewOrchestratorRejectsUnknownPolicy(t *testing.T) {
	cfg := &Config{Tagging: TaggingConfig{Concurrency: 2, Collisions: "merge"}}
	_, err := cfg.NewOrchestrator(nil)
	assert.Error(t, err)

	cfg.Tagging.Collisions = "overwrite"
	orch, err := cfg.NewOrchestrator(nil)
	require.NoError(t, err)
	assert.NotNil(t, orch)
}

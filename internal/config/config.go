package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dualforge/tagger/internal/batch"
	"github.com/dualforge/tagger/internal/gemini"
	"github.com/dualforge/tagger/internal/ollama"
	"github.com/dualforge/tagger/internal/openai"
	"github.com/dualforge/tagger/internal/preprocess"
	"github.com/dualforge/tagger/internal/providers"
	"github.com/dualforge/tagger/internal/tagging"
)

type Config struct {
	Server    ServerConfig
	Providers ProvidersConfig
	Tagging   TaggingConfig
}

type ServerConfig struct {
	Port           string
	MaxImageBytes  int64
	MaxUploadBytes int64
	JobRetention   time.Duration
}

type ProvidersConfig struct {
	// Local is "ollama" or "none"
	Local string
	// Remote is "gemini", "openai" or "none"
	Remote       string
	OllamaURL    string
	OllamaModel  string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIURL    string
	OpenAIModel  string
	Temperature  float64
}

type TaggingConfig struct {
	Concurrency      int
	InferenceTimeout time.Duration
	MaxDimension     int
	Collisions       string
	StylesFile       string
}

// Load reads configuration from the environment. A .env file, if any, has
// already been applied by the root command.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("TAGGER_PORT", "8888"),
			MaxImageBytes:  getEnvAsInt64("MAX_IMAGE_BYTES", 10*1024*1024),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
			JobRetention:   getDuration("TAGGER_JOB_RETENTION", time.Hour),
		},
		Providers: ProvidersConfig{
			Local:        strings.ToLower(getEnv("LOCAL_PROVIDER", "ollama")),
			Remote:       strings.ToLower(getEnv("REMOTE_PROVIDER", "gemini")),
			OllamaURL:    getEnv("OLLAMA_URL", getEnv("OLLAMA_HOST", ollama.DefaultURL)),
			OllamaModel:  getEnv("OLLAMA_MODEL", "llava:13b"),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
			GeminiModel:  getEnv("GEMINI_MODEL", gemini.DefaultModel),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			OpenAIURL:    getEnv("OPENAI_URL", openai.DefaultURL),
			OpenAIModel:  getEnv("OPENAI_MODEL", openai.DefaultModel),
			Temperature:  getEnvAsFloat("TAGGER_TEMPERATURE", 0.4),
		},
		Tagging: TaggingConfig{
			Concurrency:      getEnvAsInt("TAGGER_CONCURRENCY", batch.DefaultConcurrency),
			InferenceTimeout: getDuration("TAGGER_INFERENCE_TIMEOUT", tagging.DefaultTimeout),
			MaxDimension:     getEnvAsInt("TAGGER_MAX_DIMENSION", 1536),
			Collisions:       getEnv("TAGGER_COLLISIONS", string(batch.CollisionSuffix)),
			StylesFile:       os.Getenv("TAGGER_STYLES_FILE"),
		},
	}
}

// LocalProvider builds the on-device provider, or nil when disabled
func (c *Config) LocalProvider() (providers.Provider, error) {
	switch c.Providers.Local {
	case "ollama":
		return ollama.New(c.Providers.OllamaURL, providers.Config{
			Model:       c.Providers.OllamaModel,
			Temperature: c.Providers.Temperature,
		}), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported local provider: %s", c.Providers.Local)
	}
}

// RemoteProvider builds the remote provider, or nil when disabled
func (c *Config) RemoteProvider() (providers.Provider, error) {
	switch c.Providers.Remote {
	case "gemini":
		return gemini.New(c.Providers.GeminiAPIKey, providers.Config{
			Model:       c.Providers.GeminiModel,
			Temperature: c.Providers.Temperature,
		}), nil
	case "openai":
		return openai.New(c.Providers.OpenAIAPIKey, c.Providers.OpenAIURL, providers.Config{
			Model:       c.Providers.OpenAIModel,
			Temperature: c.Providers.Temperature,
		}), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported remote provider: %s", c.Providers.Remote)
	}
}

// NewTaggingService wires providers, prompts and preprocessing into a tagging service
func (c *Config) NewTaggingService() (*tagging.Service, error) {
	local, err := c.LocalProvider()
	if err != nil {
		return nil, err
	}
	remote, err := c.RemoteProvider()
	if err != nil {
		return nil, err
	}
	if local == nil && remote == nil {
		return nil, fmt.Errorf("no inference provider configured (set LOCAL_PROVIDER or REMOTE_PROVIDER)")
	}

	prompts, err := tagging.LoadPrompts(c.Tagging.StylesFile)
	if err != nil {
		return nil, err
	}

	slog.Debug("Configured providers", "local", c.Providers.Local, "remote", c.Providers.Remote)
	return tagging.NewService(local, remote,
		tagging.WithPrompts(prompts),
		tagging.WithResizer(preprocess.NewResizer(c.Tagging.MaxDimension)),
		tagging.WithTimeout(c.Tagging.InferenceTimeout),
	), nil
}

// NewOrchestrator builds a batch orchestrator around the given generator
func (c *Config) NewOrchestrator(gen batch.Generator) (*batch.Orchestrator, error) {
	policy, err := batch.ParseCollisionPolicy(c.Tagging.Collisions)
	if err != nil {
		return nil, err
	}
	return batch.New(gen,
		batch.WithConcurrency(c.Tagging.Concurrency),
		batch.WithCollisionPolicy(policy),
	), nil
}

// LogLevel maps LOG_LEVEL to a slog level
func LogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("Ignoring invalid integer", "key", key, "value", value)
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		slog.Warn("Ignoring invalid integer", "key", key, "value", value)
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("Ignoring invalid number", "key", key, "value", value)
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		slog.Warn("Ignoring invalid duration", "key", key, "value", value)
	}
	return defaultVal
}

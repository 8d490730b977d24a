package cmd

import (
	"log/slog"
	"os"

	"github.com/dualforge/tagger/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "tagger",
		Short: "AI caption and tag generator for single images and ZIP archives",
		Long: `Tagger generates training captions for images using vision-capable LLMs.

A local Ollama model is used when it is available; otherwise requests fall back
to a remote provider (Gemini or OpenAI). Captions come in two styles: "flux"
natural-language captions and "illustrious" comma-separated tags.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := config.LogLevel()
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTagCmd())
	cmd.AddCommand(newBatchCmd())

	return cmd
}

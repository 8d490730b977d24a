package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dualforge/tagger/internal/apperr"
	"github.com/dualforge/tagger/internal/config"
	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/tagging"
	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var style string
	var output string

	cmd := &cobra.Command{
		Use:   "tag <image>",
		Short: "Generate a caption for a single image",
		Long: `Generates a caption for one image and prints it to stdout.

The local Ollama model is tried first; the remote provider is used when the
local model is unavailable or fails.`,
		Example: `  # Natural-language caption
  tagger tag photo.jpg

  # Comma-separated training tags, saved next to the image
  tagger tag photo.png --style illustrious --output photo.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagStyle, err := models.ParseTagStyle(style)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			if err := tagging.ValidateImage(data); err != nil {
				return err
			}

			svc, err := config.Load().NewTaggingService()
			if err != nil {
				return err
			}

			result := svc.Generate(cmd.Context(), tagging.UploadedImage(filepath.Base(args[0]), data), tagStyle)
			if !result.OK() {
				return apperr.Wrap(result.Err)
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(result.Text), 0644); err != nil {
					return fmt.Errorf("failed to write caption: %w", err)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			return err
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", string(models.TagStyleFlux), "Caption style (flux or illustrious)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the caption to this file")

	return cmd
}

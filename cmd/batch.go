package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dualforge/tagger/internal/archive"
	"github.com/dualforge/tagger/internal/config"
	"github.com/dualforge/tagger/internal/export"
	"github.com/dualforge/tagger/internal/models"
	"github.com/dualforge/tagger/internal/tagging"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var style string
	var output string
	var concurrency int
	var collisions string
	var parquetPath string
	var reportPath string

	cmd := &cobra.Command{
		Use:   "batch <archive.zip>",
		Short: "Generate captions for every image in a ZIP archive",
		Long: `Generates a caption for every jpg, png and webp image inside a ZIP archive and
writes a new archive holding one .txt file per image.

Images that fail are left out of the result archive and listed at the end.
Optionally the captions are also written as a Parquet dataset (file_name, text)
and the run is summarized in a YAML report.`,
		Example: `  # Writes photos-tags.zip next to the input
  tagger batch photos.zip

  # Illustrious tags with 8 parallel requests and a parquet dataset
  tagger batch photos.zip --style illustrious --concurrency 8 --parquet metadata.parquet

  # Fail instead of renaming when two images map to the same caption file
  tagger batch photos.zip --collisions error --report run.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagStyle, err := models.ParseTagStyle(style)
			if err != nil {
				return err
			}

			archivePath := args[0]
			data, err := os.ReadFile(archivePath)
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}
			if err := tagging.ValidateArchive(archivePath, data); err != nil {
				return err
			}

			cfg := config.Load()
			if cmd.Flags().Changed("concurrency") {
				cfg.Tagging.Concurrency = concurrency
			}
			if cmd.Flags().Changed("collisions") {
				cfg.Tagging.Collisions = collisions
			}

			svc, err := cfg.NewTaggingService()
			if err != nil {
				return err
			}
			orchestrator, err := cfg.NewOrchestrator(svc)
			if err != nil {
				return err
			}

			progress := make(chan models.Progress)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				printProgress(cmd.ErrOrStderr(), progress)
			}()

			outcome, err := orchestrator.Run(cmd.Context(), data, tagStyle, progress)
			close(progress)
			<-printed
			if err != nil {
				return err
			}

			if output == "" {
				output = filepath.Join(filepath.Dir(archivePath), archive.DownloadName(filepath.Base(archivePath)))
			}
			if err := os.WriteFile(output, outcome.Archive, 0644); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			slog.Info("Wrote result archive", "path", output, "entries", len(outcome.Files))

			if parquetPath != "" {
				if err := export.SaveParquet(parquetPath, outcome, tagStyle); err != nil {
					return err
				}
				slog.Info("Wrote caption dataset", "path", parquetPath, "rows", outcome.Succeeded)
			}

			if reportPath != "" {
				report := export.NewReport(filepath.Base(archivePath), tagStyle, outcome, time.Now().UTC())
				if err := export.SaveReport(reportPath, report); err != nil {
					return err
				}
				slog.Info("Wrote run report", "path", reportPath)
			}

			for image, reason := range outcome.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s: %s\n", image, reason)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d of %d images tagged)\n", output, outcome.Succeeded, outcome.Total)
			return err
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", string(models.TagStyleFlux), "Caption style (flux or illustrious)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output archive path (defaults to <name>-tags.zip next to the input)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of images tagged in parallel (overrides TAGGER_CONCURRENCY)")
	cmd.Flags().StringVar(&collisions, "collisions", "suffix", "What to do when two images map to the same caption file (suffix, overwrite, error)")
	cmd.Flags().StringVar(&parquetPath, "parquet", "", "Also write captions as a Parquet dataset")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML run report")

	return cmd
}

func printProgress(w io.Writer, progress <-chan models.Progress) {
	for p := range progress {
		if p.Total > 0 {
			fmt.Fprintf(w, "[%s %d/%d] %s\n", p.Phase, p.Processed, p.Total, p.Message)
		} else {
			fmt.Fprintf(w, "[%s] %s\n", p.Phase, p.Message)
		}
	}
}

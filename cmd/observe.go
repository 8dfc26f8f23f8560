package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/act"
	"github.com/ocularqa/ocular/internal/browser"
	"github.com/ocularqa/ocular/internal/classify"
	"github.com/ocularqa/ocular/internal/config"
	"github.com/ocularqa/ocular/internal/extract"
	"github.com/ocularqa/ocular/internal/layout"
	"github.com/ocularqa/ocular/internal/observability"
	"github.com/ocularqa/ocular/internal/ocr"
	"github.com/ocularqa/ocular/internal/verify"
)

// newObserveCmd creates the `observe` command: a one-shot snapshot that
// navigates to a URL, classifies the visible state, and prints the result.
// Useful for tuning catalogs without writing a scenario.
func newObserveCmd() *cobra.Command {
	var clickTarget string

	observeCmd := &cobra.Command{
		Use:   "observe [url]",
		Short: "Navigates to a URL and prints the classified screen state",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}

			catalog, err := loadCatalog(cfg.Classifier.CatalogFile)
			if err != nil {
				return err
			}
			classifier, err := classify.NewClassifier(catalog, cfg.Classifier)
			if err != nil {
				return err
			}

			session, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close(ctx) }()

			var recognizer ocr.Recognizer
			if cfg.Extractor.OCREnabled {
				recognizer = ocr.NewTesseract(cfg.Extractor.TesseractPath, cfg.Extractor.Languages, logger)
			}
			extractor := extract.NewExtractor(session, recognizer, cfg.Extractor, logger)
			pipeline := verify.NewPipeline(extractor, layout.NewPartitioner(cfg.Layout),
				classifier, classify.NewHistory(cfg.Classifier.HistoryCap), logger)

			if err := session.Navigate(ctx, args[0]); err != nil {
				return err
			}

			if clickTarget != "" {
				executor := act.NewExecutor(session, cfg.Executor, logger)
				result, _, err := pipeline.Run(ctx)
				if err != nil {
					return err
				}
				outcome, err := executor.Act(ctx, schemas.ActionRequest{TargetText: clickTarget}, result.Elements)
				if err != nil {
					return err
				}
				if !outcome.Success {
					return fmt.Errorf("could not resolve click target %q: %s", clickTarget, outcome.Reason)
				}
			}

			result, _, err := pipeline.Run(ctx)
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	observeCmd.Flags().StringVar(&clickTarget, "click", "", "click element matching this text before classifying")
	return observeCmd
}

func init() {
	rootCmd.AddCommand(newObserveCmd())
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/classify"
	"github.com/ocularqa/ocular/internal/config"
	"github.com/ocularqa/ocular/internal/observability"
	"github.com/ocularqa/ocular/internal/scenario"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Runs a scenario file against live browser sessions",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override the config file and
			// environment with the right precedence.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("classifier.catalog_file", cmd.Flags().Lookup("catalog")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
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

			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			runner, err := scenario.NewRunner(&cfg, catalog, nil, nil, logger)
			if err != nil {
				return err
			}

			report, err := runner.Run(ctx, sc)
			if report != nil {
				printReport(cmd, report)
			}
			if err != nil {
				return err
			}
			if !report.Success {
				return fmt.Errorf("scenario %q finished with failed steps", sc.Name)
			}
			logger.Info("Scenario passed.", zap.String("scenario", sc.Name))
			return nil
		},
	}

	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().String("catalog", "", "state catalog YAML file (default: built-in catalog)")
	return runCmd
}

// loadCatalog resolves the state catalog, falling back to the built-in one
// when no file is configured.
func loadCatalog(path string) (schemas.StateCatalog, error) {
	if path == "" {
		return classify.DefaultCatalog(), nil
	}
	return classify.LoadCatalog(path)
}

func printReport(cmd *cobra.Command, report *scenario.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scenario: %s\n", report.Scenario)
	for _, step := range report.Steps {
		status := "ok"
		if !step.Success {
			status = "FAIL (" + step.Reason + ")"
		}
		fmt.Fprintf(out, "  %2d %-15s session=%-8s %s [%s]\n",
			step.Index, step.Step.Kind, step.Session, status, step.Duration.Round(time.Millisecond))
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

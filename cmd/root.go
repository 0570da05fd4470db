package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/config"
)

var (
	cfg     *config.Config
	apiKey  string
	rootCmd = &cobra.Command{
		Use:   "geomatch [files...]",
		Short: "Fetch coordinates for tabular files and match them together",
		Long: "Loads tabular files (CSV or XLSX), resolves row coordinates from address\n" +
			"fields via the Google Geocoding API, and joins two enriched tables on those\n" +
			"coordinates. Commands are entered at an interactive prompt; type help there\n" +
			"for the command list.",
		Args: cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c

			if apiKey != "" {
				cfg.Geocode.APIKey = apiKey
			}

			if err := config.InitLogger(cfg.Log); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), cfg, args, os.Stdin, os.Stdout)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", "",
		"Geocoding API key (overrides GEOMATCH_GEOCODE_API_KEY)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

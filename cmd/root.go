package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "university-cli",
	Short: "University directory import and enrichment pipeline",
	Long: "Imports the world university feed into a canonical directory, attaches Japanese names " +
		"from a MEXT-style sheet, geocodes institutions via ROR, and serves the result over HTTP.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

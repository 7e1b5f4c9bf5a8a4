package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/enrich"
)

var (
	localizeCSVURL string
	localizeJSON   string
	geoWorkers     int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich directory records with Japanese names or coordinates",
}

var enrichLocalizeCmd = &cobra.Command{
	Use:   "localize",
	Short: "Attach Japanese names from the name-pair sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if localizeCSVURL != "" {
			cfg.Localize.CSVURL = localizeCSVURL
		}
		if localizeJSON != "" {
			cfg.Localize.JSONPath = localizeJSON
		}
		if err := cfg.Validate("localize"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := runLocalize(ctx, st)
		logLocalizeReport(report)
		if err != nil {
			return eris.Wrap(err, "enrich localize")
		}
		return nil
	},
}

var enrichGeoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Attach coordinates from the ROR organization registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if geoWorkers > 0 {
			cfg.Geo.Workers = geoWorkers
		}
		if err := cfg.Validate("geo"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := runGeo(ctx, st)
		logGeoReport(report)
		if err != nil {
			return eris.Wrap(err, "enrich geo")
		}
		return nil
	},
}

func logLocalizeReport(r *enrich.LocalizeReport) {
	if r == nil {
		return
	}
	zap.L().Info("localize complete",
		zap.Int("scanned", r.Scanned),
		zap.Int("matched", r.Matched),
		zap.Int("exact", r.Exact),
		zap.Int("fuzzy", r.Fuzzy),
		zap.Int("updated", r.Updated),
		zap.Int("skipped", r.Skipped),
		zap.Int("backfilled", r.Backfilled),
		zap.Int("failed", r.Failed),
	)
}

func logGeoReport(r *enrich.GeoReport) {
	if r == nil {
		return
	}
	zap.L().Info("geo complete",
		zap.Int("scanned", r.Scanned),
		zap.Int("fetched", r.Fetched),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
		zap.Any("skip_reasons", r.SkipReasons),
	)
}

func init() {
	enrichLocalizeCmd.Flags().StringVar(&localizeCSVURL, "csv-url", "", "name-pair sheet location, CSV or XLSX (default from config)")
	enrichLocalizeCmd.Flags().StringVar(&localizeJSON, "json", "", "fallback JSON mapping of English to Japanese names")
	enrichGeoCmd.Flags().IntVar(&geoWorkers, "workers", 0, "parallel ROR lookups (default from config)")

	enrichCmd.AddCommand(enrichLocalizeCmd, enrichGeoCmd)
	rootCmd.AddCommand(enrichCmd)
}

package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/importer"
)

var (
	importFile      string
	importURL       string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the university domains feed into the directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		switch {
		case importFile != "" && importURL != "":
			return eris.New("--file and --url are mutually exclusive")
		case importFile != "":
			cfg.Import.SourceURL = importFile
		case importURL != "":
			cfg.Import.SourceURL = importURL
		}
		if importBatchSize > 0 {
			cfg.Import.BatchSize = importBatchSize
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := runImport(ctx, st, cfg.Import.SourceURL)
		logImportReport(report)
		if err != nil {
			return eris.Wrap(err, "import")
		}
		return nil
	},
}

func logImportReport(r *importer.Report) {
	if r == nil {
		return
	}
	zap.L().Info("import complete",
		zap.Int("total", r.Total),
		zap.Int64("inserted", r.Inserted),
		zap.Int("skipped", r.Skipped),
		zap.Int("chunks", r.Chunks),
		zap.Any("skip_reasons", r.SkipReasons),
	)
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "local feed file (JSON array)")
	importCmd.Flags().StringVar(&importURL, "url", "", "feed URL (http, https or ftp); default from config")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "records per insert chunk (default from config)")
	rootCmd.AddCommand(importCmd)
}

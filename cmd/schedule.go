package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the enrichers on cron schedules until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, err := newScheduler(ctx, st)
		if err != nil {
			return err
		}

		c.Start()
		zap.L().Info("scheduler started",
			zap.String("localize", cfg.Schedule.Localize),
			zap.String("geo", cfg.Schedule.Geo),
		)
		<-ctx.Done()

		zap.L().Info("stopping scheduler")
		<-c.Stop().Done()
		return nil
	},
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers a job per configured spec. A run still in progress
// when its next tick fires is skipped.
func newScheduler(ctx context.Context, st store.Store) (*cron.Cron, error) {
	logger := cronLogger{s: zap.S()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"localize", cfg.Schedule.Localize, func(ctx context.Context) error {
			report, err := runLocalize(ctx, st)
			logLocalizeReport(report)
			return err
		}},
		{"geo", cfg.Schedule.Geo, func(ctx context.Context) error {
			report, err := runGeo(ctx, st)
			logGeoReport(report)
			return err
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := c.AddFunc(job.spec, func() {
			zap.L().Info("scheduled job starting", zap.String("job", job.name))
			if err := job.run(ctx); err != nil {
				zap.L().Error("scheduled job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return nil, eris.Wrapf(err, "schedule %s %q", job.name, job.spec)
		}
	}
	return c, nil
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

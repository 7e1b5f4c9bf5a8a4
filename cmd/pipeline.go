package main

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/university-cli/internal/enrich"
	"github.com/sells-group/university-cli/internal/fetcher"
	"github.com/sells-group/university-cli/internal/geoclass"
	"github.com/sells-group/university-cli/internal/importer"
	"github.com/sells-group/university-cli/internal/namepair"
	"github.com/sells-group/university-cli/internal/resilience"
	"github.com/sells-group/university-cli/internal/store"
	"github.com/sells-group/university-cli/pkg/ror"
)

const breakerCooldown = 30 * time.Second

// initStore opens the configured store. The embedded sqlite database is
// migrated on open.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == "sqlite" {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// newOpener builds the source opener. Each configured source host gets an
// adaptive rate limiter.
func newOpener() *fetcher.Opener {
	hostRates := make(map[string]rate.Limit)
	if cfg.Fetch.RatePerSec > 0 {
		for _, loc := range []string{cfg.Import.SourceURL, cfg.Localize.CSVURL, cfg.Localize.JSONPath} {
			if u, err := url.Parse(loc); err == nil && u.Host != "" {
				hostRates[u.Host] = rate.Limit(cfg.Fetch.RatePerSec)
			}
		}
	}
	return fetcher.NewOpener(
		fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
			HostRates:  hostRates,
		},
		fetcher.FTPOptions{Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second},
	)
}

// runImport loads the feed at location and inserts it in chunks.
func runImport(ctx context.Context, st store.Store, location string) (*importer.Report, error) {
	classifier, err := geoclass.Default()
	if err != nil {
		return nil, eris.Wrap(err, "load geo classifier")
	}

	body, err := newOpener().Open(ctx, location)
	if err != nil {
		return nil, eris.Wrap(err, "open feed")
	}
	defer body.Close() //nolint:errcheck

	records, err := importer.LoadFeed(ctx, body)
	if err != nil {
		return nil, err
	}
	zap.L().Info("feed loaded",
		zap.String("source", location),
		zap.Int("records", len(records)),
		zap.String("tables_version", classifier.Version()),
	)

	im := importer.New(st, classifier, importer.Config{
		BatchSize: cfg.Import.BatchSize,
		Tags:      cfg.Import.Tags,
	})
	return im.ImportBatch(ctx, records)
}

// runLocalize loads the name-pair source and writes Japanese names.
func runLocalize(ctx context.Context, st store.Store) (*enrich.LocalizeReport, error) {
	loader := &namepair.Loader{
		Opener:    newOpener(),
		RemoteURL: cfg.Localize.CSVURL,
		JSONPath:  cfg.Localize.JSONPath,
	}
	pairs, source, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	index := namepair.BuildIndex(pairs)
	zap.L().Info("name pairs loaded",
		zap.String("source", source),
		zap.Int("pairs", len(pairs)),
		zap.Int("keys", index.Len()),
	)

	localizer := enrich.NewLocalizer(st, enrich.LocalizerConfig{
		PageSize:  cfg.Localize.PageSize,
		Threshold: cfg.Match.Threshold,
	})
	return localizer.Enrich(ctx, index)
}

// runGeo geocodes records that lack coordinates via ROR.
func runGeo(ctx context.Context, st store.Store) (*enrich.GeoReport, error) {
	client := ror.NewClient(
		ror.WithBaseURL(cfg.Geo.BaseURL),
		ror.WithContactEmail(cfg.Geo.ContactEmail),
		ror.WithHTTPClient(&http.Client{Timeout: cfg.Geo.Timeout()}),
	)

	var opts []enrich.GeocoderOption
	if cfg.Geo.BreakerThreshold > 0 {
		opts = append(opts, enrich.WithBreaker(resilience.NewBreaker(cfg.Geo.BreakerThreshold, breakerCooldown,
			resilience.WithStateChange(func(from, to resilience.BreakerState) {
				zap.L().Warn("ror breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}),
		)))
	}

	geocoder := enrich.NewGeocoder(st, client, resilience.NewThrottle(cfg.Geo.Delay()), enrich.GeocoderConfig{
		PageSize:   cfg.Geo.PageSize,
		Workers:    cfg.Geo.Workers,
		Backoff:    cfg.Geo.Backoff(),
		MaxRetries: cfg.Geo.MaxRetries,
	}, opts...)
	return geocoder.Enrich(ctx)
}

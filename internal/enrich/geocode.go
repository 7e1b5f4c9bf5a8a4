package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/university-cli/internal/model"
	"github.com/sells-group/university-cli/internal/normalize"
	"github.com/sells-group/university-cli/internal/resilience"
	"github.com/sells-group/university-cli/pkg/ror"
)

// Geo skip reasons reported in GeoReport.SkipReasons.
const (
	ReasonNoResult    = "no_result"
	ReasonRateLimited = "rate_limited"
	ReasonUnavailable = "unavailable"
	ReasonAlreadySet  = "already_set"
)

// GeoStore is the store surface the Geocoder needs.
type GeoStore interface {
	ListMissingCoordinates(ctx context.Context, afterSeq int64, limit int) ([]model.University, error)
	SetCoordinates(ctx context.Context, id string, lat, lng float64, city string) (bool, error)
}

// GeocoderConfig tunes a geocoding run.
type GeocoderConfig struct {
	PageSize int
	Workers  int
	// Backoff is how long every worker pauses after a 429.
	Backoff time.Duration
	// MaxRetries is the number of extra attempts after a 429.
	MaxRetries int
}

// GeoReport summarizes a geocoding run.
type GeoReport struct {
	Scanned     int            `json:"scanned"`
	Fetched     int            `json:"fetched"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	SkipReasons map[string]int `json:"skip_reasons"`
}

// geoOutcome is the result of one record. An empty skip with failed unset
// means coordinates were written.
type geoOutcome struct {
	skip   string
	failed bool
}

// GeocoderOption configures a Geocoder.
type GeocoderOption func(*Geocoder)

// WithBreaker stops calling the API while b is open; affected records are
// skipped as unavailable.
func WithBreaker(b *resilience.Breaker) GeocoderOption {
	return func(g *Geocoder) {
		g.breaker = b
	}
}

// Geocoder writes coordinates onto records that lack them.
type Geocoder struct {
	store    GeoStore
	client   ror.Client
	throttle *resilience.Throttle
	breaker  *resilience.Breaker
	cfg      GeocoderConfig
}

// NewGeocoder creates a Geocoder. Every API call waits on throttle, which
// is shared by all workers.
func NewGeocoder(store GeoStore, client ror.Client, throttle *resilience.Throttle, cfg GeocoderConfig, opts ...GeocoderOption) *Geocoder {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if throttle == nil {
		throttle = resilience.NewThrottle(0)
	}
	g := &Geocoder{store: store, client: client, throttle: throttle, cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enrich geocodes every record with no coordinates, one page at a time. A
// page is fanned out to the configured workers and finished before the next
// page is read. External failures are skipped and counted; a page read
// failure or cancellation ends the run with the partial report.
func (g *Geocoder) Enrich(ctx context.Context) (*GeoReport, error) {
	report := &GeoReport{SkipReasons: make(map[string]int)}
	var (
		mu    sync.Mutex
		after int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "geo: cancelled")
		}

		page, err := g.store.ListMissingCoordinates(ctx, after, g.cfg.PageSize)
		if err != nil {
			return report, eris.Wrap(err, "geo: list page")
		}
		if len(page) == 0 {
			break
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.cfg.Workers)
		for i := range page {
			u := page[i]
			eg.Go(func() error {
				out := g.geocodeOne(egCtx, u)
				if egCtx.Err() != nil {
					return nil
				}
				mu.Lock()
				report.add(out)
				mu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()

		after = page[len(page)-1].Seq
	}

	zap.L().Info("geo: run complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("fetched", report.Fetched),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Any("skip_reasons", report.SkipReasons),
		zap.Int("pauses", g.throttle.Pauses()),
	)
	return report, nil
}

func (r *GeoReport) add(out geoOutcome) {
	r.Scanned++
	switch {
	case out.failed:
		r.Failed++
	case out.skip != "":
		r.Skipped++
		r.SkipReasons[out.skip]++
	default:
		r.Fetched++
	}
}

// geocodeOne queries the normalized name, then the raw English name when it
// differs, and stores the first usable coordinates. The record is skipped as
// unavailable only when no query produced a usable result and at least one
// failed as unavailable.
func (g *Geocoder) geocodeOne(ctx context.Context, u model.University) geoOutcome {
	key := u.Normalized()
	if key == "" {
		key = normalize.Name(u.NameEN)
	}
	queries := []string{key}
	if raw := strings.TrimSpace(u.NameEN); raw != "" && raw != key {
		queries = append(queries, raw)
	}

	unavailable := false
	for _, q := range queries {
		if q == "" {
			continue
		}
		orgs, err := g.search(ctx, q)
		if err != nil {
			// Only an unavailable response moves on to the next query.
			if errors.Is(err, ror.ErrUnavailable) && ctx.Err() == nil {
				zap.L().Warn("geo: search unavailable, trying next query",
					zap.String("id", u.ID), zap.String("query", q), zap.Error(err))
				unavailable = true
				continue
			}
			reason := ReasonUnavailable
			if errors.Is(err, ror.ErrRateLimited) {
				reason = ReasonRateLimited
			}
			zap.L().Warn("geo: search failed, skipping record",
				zap.String("id", u.ID), zap.String("query", q), zap.String("reason", reason), zap.Error(err))
			return geoOutcome{skip: reason}
		}

		org, ok := pickCandidate(orgs, u.CountryCode)
		if !ok {
			continue
		}
		pt, ok := org.Coordinates()
		if !ok {
			continue
		}

		updated, err := g.store.SetCoordinates(ctx, u.ID, pt.Lat, pt.Lng, pt.City)
		if err != nil {
			zap.L().Warn("geo: write coordinates failed", zap.String("id", u.ID), zap.Error(err))
			return geoOutcome{failed: true}
		}
		if !updated {
			return geoOutcome{skip: ReasonAlreadySet}
		}
		zap.L().Debug("geo: coordinates stored",
			zap.String("id", u.ID), zap.String("ror_id", org.ID), zap.Float64("lat", pt.Lat), zap.Float64("lng", pt.Lng))
		return geoOutcome{}
	}

	if unavailable {
		return geoOutcome{skip: ReasonUnavailable}
	}
	zap.L().Debug("geo: no usable result", zap.String("id", u.ID), zap.String("name", u.NameEN))
	return geoOutcome{skip: ReasonNoResult}
}

// search runs one throttled query. A 429 pauses the shared throttle for the
// configured backoff and the query is retried up to MaxRetries times; the
// throttle does the waiting, so the retry itself has no extra delay.
func (g *Geocoder) search(ctx context.Context, query string) ([]ror.Organization, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts: g.cfg.MaxRetries + 1,
		ShouldRetry: func(err error) bool {
			return errors.Is(err, ror.ErrRateLimited)
		},
		Delay:   func(int, error) time.Duration { return 0 },
		OnRetry: resilience.RetryLogger("ror", "search_organizations"),
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]ror.Organization, error) {
		if err := g.throttle.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geo: throttle")
		}
		if g.breaker != nil {
			if err := g.breaker.Allow(); err != nil {
				return nil, eris.Wrap(err, "geo: ror search")
			}
		}

		orgs, err := g.client.SearchOrganizations(ctx, query)

		if g.breaker != nil {
			g.breaker.Record(errors.Is(err, ror.ErrUnavailable))
		}
		if errors.Is(err, ror.ErrRateLimited) {
			g.throttle.Pause(g.cfg.Backoff)
		}
		return orgs, err
	})
}

// pickCandidate returns the first organization in the record's country, or
// the first organization when none match.
func pickCandidate(orgs []ror.Organization, countryCode string) (ror.Organization, bool) {
	if len(orgs) == 0 {
		return ror.Organization{}, false
	}
	for _, o := range orgs {
		if countryCode != "" && strings.EqualFold(o.CountryCode(), countryCode) {
			return o, true
		}
	}
	return orgs[0], true
}

// Package enrich fills missing fields on stored universities: Japanese names
// from a name-pair source and coordinates from the ROR geocoder.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/match"
	"github.com/sells-group/university-cli/internal/model"
	"github.com/sells-group/university-cli/internal/normalize"
)

// DefaultPageSize is the number of records read per store page.
const DefaultPageSize = 200

// LocalizeStore is the store surface the Localizer needs.
type LocalizeStore interface {
	ListMissingNameJA(ctx context.Context, afterSeq int64, limit int) ([]model.University, error)
	AliasesFor(ctx context.Context, universityIDs []string) (map[string][]model.Alias, error)
	SetNormalizedName(ctx context.Context, id, key string) error
	SetNameJA(ctx context.Context, id, nameJA string) (bool, error)
}

// LocalizerConfig tunes a localization run.
type LocalizerConfig struct {
	PageSize  int
	Threshold float64
}

// LocalizeReport summarizes a localization run.
type LocalizeReport struct {
	Scanned    int `json:"scanned"`
	Matched    int `json:"matched"`
	Exact      int `json:"exact"`
	Fuzzy      int `json:"fuzzy"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Backfilled int `json:"backfilled"`
	Failed     int `json:"failed"`
}

// Localizer writes Japanese names onto records that lack one.
type Localizer struct {
	store LocalizeStore
	cfg   LocalizerConfig
}

// NewLocalizer creates a Localizer. Zero config values take defaults.
func NewLocalizer(store LocalizeStore, cfg LocalizerConfig) *Localizer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = match.DefaultThreshold
	}
	return &Localizer{store: store, cfg: cfg}
}

// Enrich pages through records with no Japanese name and resolves each one
// against source: exact on the normalized name, exact on each alias, then
// the best fuzzy score over name and aliases. Write failures are counted;
// a page read failure or cancellation ends the run with the partial report.
func (l *Localizer) Enrich(ctx context.Context, source *match.Index[string]) (*LocalizeReport, error) {
	report := &LocalizeReport{}
	var after int64

	for {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "localize: cancelled")
		}

		page, err := l.store.ListMissingNameJA(ctx, after, l.cfg.PageSize)
		if err != nil {
			return report, eris.Wrap(err, "localize: list page")
		}
		if len(page) == 0 {
			break
		}

		ids := make([]string, len(page))
		for i := range page {
			ids[i] = page[i].ID
		}
		aliases, err := l.store.AliasesFor(ctx, ids)
		if err != nil {
			return report, eris.Wrap(err, "localize: load aliases")
		}

		for i := range page {
			l.localizeOne(ctx, &page[i], aliases[page[i].ID], source, report)
		}
		after = page[len(page)-1].Seq
	}

	zap.L().Info("localize: run complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("matched", report.Matched),
		zap.Int("exact", report.Exact),
		zap.Int("fuzzy", report.Fuzzy),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("backfilled", report.Backfilled),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (l *Localizer) localizeOne(ctx context.Context, u *model.University, aliases []model.Alias, source *match.Index[string], report *LocalizeReport) {
	report.Scanned++

	key := u.Normalized()
	if key == "" {
		key = normalize.Name(u.NameEN)
		if err := l.store.SetNormalizedName(ctx, u.ID, key); err != nil {
			zap.L().Warn("localize: backfill normalized name failed", zap.String("id", u.ID), zap.Error(err))
		} else {
			report.Backfilled++
		}
	}

	aliasKeys := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if k := normalize.Name(a.Alias); k != "" {
			aliasKeys = append(aliasKeys, k)
		}
	}

	ja, exact, ok := resolve(key, aliasKeys, source, l.cfg.Threshold)
	if !ok {
		zap.L().Debug("localize: no match", zap.String("id", u.ID), zap.String("key", key))
		report.Skipped++
		return
	}
	report.Matched++
	if exact {
		report.Exact++
	} else {
		report.Fuzzy++
	}

	updated, err := l.store.SetNameJA(ctx, u.ID, ja)
	if err != nil {
		zap.L().Warn("localize: write name_ja failed", zap.String("id", u.ID), zap.Error(err))
		report.Failed++
		return
	}
	if updated {
		report.Updated++
	}
}

// resolve returns the paired Japanese name for a record key and its alias
// keys. exact reports whether the match needed no similarity scoring.
func resolve(key string, aliasKeys []string, source *match.Index[string], threshold float64) (ja string, exact, ok bool) {
	if source == nil || source.Len() == 0 {
		return "", false, false
	}

	queries := make([]string, 0, 1+len(aliasKeys))
	if key != "" {
		queries = append(queries, key)
	}
	queries = append(queries, aliasKeys...)

	for _, q := range queries {
		if v, found := source.Lookup(q); found {
			return v, true, true
		}
	}

	var best match.Match[string]
	found := false
	for _, q := range queries {
		m, ok := source.Best(q)
		if ok && (!found || m.Score > best.Score) {
			best, found = m, true
		}
	}
	if !found || !match.Accept(best.Score, threshold) {
		return "", false, false
	}
	return best.Value, false, true
}

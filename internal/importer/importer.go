// Package importer loads the bulk institutions feed into the canonical store,
// classifying each record's country and skipping rows that cannot be placed.
package importer

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/fetcher"
	"github.com/sells-group/university-cli/internal/geoclass"
	"github.com/sells-group/university-cli/internal/model"
	"github.com/sells-group/university-cli/internal/normalize"
)

// DefaultBatchSize is the number of records inserted per store round trip.
const DefaultBatchSize = 100

// Skip reasons reported in Report.SkipReasons.
const (
	ReasonMalformed         = "malformed_row"
	ReasonNoClassification  = "no_classification"
	ReasonDuplicateInBatch  = "duplicate_in_batch"
	ReasonDuplicateExisting = "duplicate_existing"
)

// Inserter persists a chunk with insert-or-ignore semantics on the natural
// key and returns how many rows were new.
type Inserter interface {
	InsertUniversities(ctx context.Context, rows []model.University) (int64, error)
}

// Classifier resolves raw country text.
type Classifier interface {
	Resolve(raw string) (geoclass.Classification, error)
}

// Config tunes an import run.
type Config struct {
	BatchSize int
	Tags      []string
}

// Report summarizes an import run.
type Report struct {
	Total       int            `json:"total"`
	Inserted    int64          `json:"inserted"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons"`
	Chunks      int            `json:"chunks"`
}

func (r *Report) skip(reason string) {
	r.Skipped++
	r.SkipReasons[reason]++
}

// Importer turns source institutions into canonical records.
type Importer struct {
	store      Inserter
	classifier Classifier
	cfg        Config
}

// New creates an Importer. A non-positive batch size uses DefaultBatchSize.
func New(store Inserter, classifier Classifier, cfg Config) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Importer{store: store, classifier: classifier, cfg: cfg}
}

// LoadFeed decodes the feed's JSON array. An element that does not decode as
// an institution is kept as an empty record so the import reports it as
// malformed instead of aborting.
func LoadFeed(ctx context.Context, r io.Reader) ([]model.SourceInstitution, error) {
	rawCh, errCh := fetcher.DecodeJSONArray[json.RawMessage](ctx, r)

	var records []model.SourceInstitution
	for raw := range rawCh {
		var rec model.SourceInstitution
		if err := json.Unmarshal(raw, &rec); err != nil {
			zap.L().Debug("importer: undecodable feed element", zap.Int("index", len(records)), zap.Error(err))
			rec = model.SourceInstitution{}
		}
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return records, eris.Wrap(err, "importer: decode feed")
	}
	return records, nil
}

// ImportBatch classifies, normalizes and inserts records chunk by chunk.
// Duplicates are detected within a chunk; rows already stored are ignored by
// the store. A store failure or cancellation stops the run at a chunk
// boundary and returns the partial report with the error.
func (im *Importer) ImportBatch(ctx context.Context, records []model.SourceInstitution) (*Report, error) {
	report := &Report{Total: len(records), SkipReasons: make(map[string]int)}

	for start := 0; start < len(records); start += im.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "importer: cancelled")
		}

		end := min(start+im.cfg.BatchSize, len(records))
		rows := im.prepareChunk(records[start:end], start, report)
		report.Chunks++
		if len(rows) == 0 {
			continue
		}

		inserted, err := im.store.InsertUniversities(ctx, rows)
		if err != nil {
			return report, eris.Wrapf(err, "importer: insert chunk at record %d", start)
		}
		report.Inserted += inserted
		if existing := len(rows) - int(inserted); existing > 0 {
			report.Skipped += existing
			report.SkipReasons[ReasonDuplicateExisting] += existing
		}

		zap.L().Debug("importer: chunk stored",
			zap.Int("offset", start),
			zap.Int("rows", len(rows)),
			zap.Int64("inserted", inserted),
		)
	}

	zap.L().Info("importer: import complete",
		zap.Int("total", report.Total),
		zap.Int64("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Any("skip_reasons", report.SkipReasons),
	)
	return report, nil
}

func (im *Importer) prepareChunk(chunk []model.SourceInstitution, offset int, report *Report) []model.University {
	seen := make(map[model.NaturalKey]struct{}, len(chunk))
	rows := make([]model.University, 0, len(chunk))

	for i, rec := range chunk {
		name := strings.TrimSpace(rec.Name)
		country := strings.TrimSpace(rec.Country)
		code := strings.TrimSpace(rec.AlphaTwoCode)

		if name == "" || (country == "" && code == "") {
			zap.L().Debug("importer: malformed record", zap.Int("index", offset+i))
			report.skip(ReasonMalformed)
			continue
		}

		cls, err := im.classify(country, code)
		if err != nil {
			zap.L().Debug("importer: unclassified country",
				zap.String("name", name), zap.String("country", country), zap.Error(err))
			report.skip(ReasonNoClassification)
			continue
		}

		key := model.NaturalKey{NameEN: name, CountryCode: cls.CountryCode}
		if _, dup := seen[key]; dup {
			report.skip(ReasonDuplicateInBatch)
			continue
		}
		seen[key] = struct{}{}

		rows = append(rows, model.University{
			CountryCode:    cls.CountryCode,
			Continent:      cls.Continent,
			NameEN:         name,
			NormalizedName: model.StringPtr(normalize.Name(name)),
			Website:        model.StringPtr(rec.Homepage()),
			Tags:           append([]string(nil), im.cfg.Tags...),
		})
	}
	return rows
}

// classify resolves the country text, falling back to the feed's alpha-2
// code when the text is unknown.
func (im *Importer) classify(country, code string) (geoclass.Classification, error) {
	var err error
	if country != "" {
		var cls geoclass.Classification
		if cls, err = im.classifier.Resolve(country); err == nil {
			return cls, nil
		}
	}
	if code != "" {
		return im.classifier.Resolve(code)
	}
	return geoclass.Classification{}, err
}

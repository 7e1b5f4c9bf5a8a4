// Package namepair loads English→Japanese institution name pairs from a
// remote CSV or XLSX sheet, or from a local JSON mapping, and indexes them by
// normalized English name.
package namepair

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/university-cli/internal/fetcher"
	"github.com/sells-group/university-cli/internal/match"
	"github.com/sells-group/university-cli/internal/model"
	"github.com/sells-group/university-cli/internal/normalize"
)

var (
	// ErrNoSource is returned when neither the remote sheet nor the local
	// JSON mapping could be loaded.
	ErrNoSource = eris.New("namepair: no localization source available")
	// ErrNoColumns is returned when a header row has no recognizable English
	// or Japanese name column.
	ErrNoColumns = eris.New("namepair: name columns not found in header")
)

var (
	enSubstrings = []string{"english", "name_en", "英語"}
	jaSubstrings = []string{"japanese", "name_ja", "日本語"}
)

// DetectColumns locates the English and Japanese name columns in header by
// case-insensitive matching, so renamed headers still resolve.
func DetectColumns(header []string) (en, ja int, err error) {
	en, ja = -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case ja < 0 && headerMatches(h, jaSubstrings, "ja"):
			ja = i
		case en < 0 && headerMatches(h, enSubstrings, "en"):
			en = i
		}
	}
	if en < 0 || ja < 0 {
		return -1, -1, eris.Wrapf(ErrNoColumns, "header %q", header)
	}
	return en, ja, nil
}

func headerMatches(h string, substrings []string, token string) bool {
	for _, s := range substrings {
		if strings.Contains(h, s) {
			return true
		}
	}
	fields := strings.FieldsFunc(h, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	return false
}

// fromRows converts a header row plus data rows to pairs. Rows missing
// either name are dropped.
func fromRows(header []string, rows [][]string) ([]model.NamePair, error) {
	en, ja, err := DetectColumns(header)
	if err != nil {
		return nil, err
	}
	var pairs []model.NamePair
	for _, row := range rows {
		if p, ok := pairAt(row, en, ja); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

func pairAt(row []string, en, ja int) (model.NamePair, bool) {
	if en >= len(row) || ja >= len(row) {
		return model.NamePair{}, false
	}
	p := model.NamePair{EN: strings.TrimSpace(row[en]), JA: strings.TrimSpace(row[ja])}
	return p, p.EN != "" && p.JA != ""
}

// ParseCSV streams a CSV with a header row.
func ParseCSV(ctx context.Context, r io.Reader) ([]model.NamePair, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})

	var (
		en, ja int
		pairs  []model.NamePair
		err    error
		header bool
	)
	for row := range rowCh {
		if err != nil {
			continue // drain
		}
		if !header {
			header = true
			en, ja, err = DetectColumns(row)
			continue
		}
		if p, ok := pairAt(row, en, ja); ok {
			pairs = append(pairs, p)
		}
	}
	if err != nil {
		return nil, err
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, eris.Wrap(streamErr, "namepair: parse csv")
	}
	if !header {
		return nil, eris.Wrap(ErrNoColumns, "namepair: empty csv")
	}
	return pairs, nil
}

// ParseXLSX reads the first worksheet of a workbook with a header row.
func ParseXLSX(r io.Reader) ([]model.NamePair, error) {
	rows, err := fetcher.ReadXLSX(r, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "namepair: parse xlsx")
	}
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrNoColumns, "namepair: empty worksheet")
	}
	return fromRows(rows[0], rows[1:])
}

// ParseJSON decodes a {"english": "japanese"} object, keeping document order.
// Entries whose value is not a non-empty string are dropped.
func ParseJSON(r io.Reader) ([]model.NamePair, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "namepair: read json")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.Errorf("namepair: expected json object, got %v", tok)
	}

	var pairs []model.NamePair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "namepair: read json key")
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, eris.Wrapf(err, "namepair: read json value for %q", key)
		}
		ja, ok := value.(string)
		if !ok {
			continue
		}
		p := model.NamePair{EN: strings.TrimSpace(key), JA: strings.TrimSpace(ja)}
		if p.EN != "" && p.JA != "" {
			pairs = append(pairs, p)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "namepair: read json end")
	}
	return pairs, nil
}

// BuildIndex keys pairs by normalized English name. When two pairs share a
// key the first one is kept.
func BuildIndex(pairs []model.NamePair, opts ...match.Option) *match.Index[string] {
	ix := match.NewIndex[string](opts...)
	for _, p := range pairs {
		key := normalize.Name(p.EN)
		if key == "" || p.JA == "" {
			continue
		}
		ix.Add(key, p.JA)
	}
	return ix
}

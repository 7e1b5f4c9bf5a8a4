package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/university-cli/internal/model"
)

// Sentinel errors shared by every Store implementation.
var (
	// ErrNotFound is returned when an ID does not resolve to a row.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when a write collides with a unique key:
	// the university natural key (name_en, country_code) or an alias.
	ErrDuplicate = eris.New("store: duplicate key")
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Filter selects universities for the search API.
type Filter struct {
	Query       string `json:"q,omitempty"` // partial match on names and aliases, or exact normalized key
	CountryCode string `json:"country,omitempty"`
	Continent   string `json:"continent,omitempty"`
	Tag         string `json:"tag,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultPageLimit
	case f.Limit > maxPageLimit:
		return maxPageLimit
	default:
		return f.Limit
	}
}

func (f Filter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// Page is one page of search results.
type Page struct {
	Items  []model.University `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// UniversityPatch lists the fields an admin update may change. Nil fields are
// left untouched. Latitude and Longitude must be set together.
type UniversityPatch struct {
	NameEN         *string   `json:"name_en,omitempty"`
	NameJA         *string   `json:"name_ja,omitempty"`
	NormalizedName *string   `json:"-"`
	CountryCode    *string   `json:"-"`
	Continent      *string   `json:"-"`
	City           *string   `json:"city,omitempty"`
	Website        *string   `json:"website,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
}

// Counts summarizes directory coverage.
type Counts struct {
	Total           int            `json:"total"`
	WithNameJA      int            `json:"with_name_ja"`
	WithCoordinates int            `json:"with_coordinates"`
	WithNormalized  int            `json:"with_normalized_name"`
	Aliases         int            `json:"aliases"`
	ByContinent     map[string]int `json:"by_continent"`
}

// Store defines the persistence interface for the university directory.
type Store interface {
	// Pipeline writes
	InsertUniversities(ctx context.Context, unis []model.University) (int64, error)
	ListMissingNameJA(ctx context.Context, afterSeq int64, limit int) ([]model.University, error)
	ListMissingCoordinates(ctx context.Context, afterSeq int64, limit int) ([]model.University, error)
	SetNormalizedName(ctx context.Context, id, key string) error
	SetNameJA(ctx context.Context, id, nameJA string) (bool, error)
	SetCoordinates(ctx context.Context, id string, lat, lng float64, city string) (bool, error)

	// Universities
	GetUniversity(ctx context.Context, id string) (*model.University, error)
	SearchUniversities(ctx context.Context, filter Filter) (*Page, error)
	CreateUniversity(ctx context.Context, u *model.University) error
	UpdateUniversity(ctx context.Context, id string, patch UniversityPatch) (*model.University, error)
	DeleteUniversity(ctx context.Context, id string) error
	CountUniversities(ctx context.Context) (*Counts, error)

	// Aliases
	AddAlias(ctx context.Context, a *model.Alias) error
	ListAliases(ctx context.Context, universityID string) ([]model.Alias, error)
	AliasesFor(ctx context.Context, universityIDs []string) (map[string][]model.Alias, error)
	DeleteAlias(ctx context.Context, universityID, aliasID string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// universityColumns is the select list shared by both implementations.
const universityColumns = `seq, id, country_code, continent, name_en, name_ja, normalized_name,
	city, latitude, longitude, website, tags, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/university-cli/internal/db"
	"github.com/sells-group/university-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS universities (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	country_code    CHAR(2) NOT NULL,
	continent       TEXT NOT NULL,
	name_en         TEXT NOT NULL,
	name_ja         TEXT,
	normalized_name TEXT,
	city            TEXT,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	location        geometry(Point, 4326),
	website         TEXT,
	tags            TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT universities_natural_key UNIQUE (name_en, country_code),
	CONSTRAINT universities_coordinates_paired CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE TABLE IF NOT EXISTS university_aliases (
	id            TEXT PRIMARY KEY,
	university_id TEXT NOT NULL REFERENCES universities(id) ON DELETE CASCADE,
	alias         TEXT NOT NULL,
	alias_type    TEXT NOT NULL DEFAULT 'other'
		CHECK (alias_type IN ('abbreviation', 'variant', 'old_name', 'other')),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (university_id, alias)
);

CREATE INDEX IF NOT EXISTS idx_universities_normalized_name ON universities(normalized_name);
CREATE INDEX IF NOT EXISTS idx_universities_country_code ON universities(country_code);
CREATE INDEX IF NOT EXISTS idx_universities_continent ON universities(continent);
CREATE INDEX IF NOT EXISTS idx_universities_missing_ja ON universities(seq) WHERE name_ja IS NULL;
CREATE INDEX IF NOT EXISTS idx_universities_missing_coords ON universities(seq) WHERE latitude IS NULL;
CREATE INDEX IF NOT EXISTS idx_universities_tags ON universities USING GIN (tags);
CREATE INDEX IF NOT EXISTS idx_universities_location ON universities USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_university_aliases_university_id ON university_aliases(university_id);
`

// insertColumns is the COPY column list used by InsertUniversities.
var insertColumns = []string{
	"id", "country_code", "continent", "name_en", "name_ja", "normalized_name", "city",
	"latitude", "longitude", "website", "tags", "created_at", "updated_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Pipeline writes ---

// InsertUniversities stages the batch with COPY and merges it with
// ON CONFLICT DO NOTHING on the natural key.
func (s *PostgresStore) InsertUniversities(ctx context.Context, unis []model.University) (int64, error) {
	if len(unis) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(unis))
	for i := range unis {
		u := &unis[i]
		prepareNew(u, now)
		rows[i] = []any{
			u.ID, u.CountryCode, u.Continent, u.NameEN, u.NameJA, u.NormalizedName, u.City,
			u.Latitude, u.Longitude, u.Website, u.Tags, u.CreatedAt, u.UpdatedAt,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "universities",
		Columns:      insertColumns,
		ConflictKeys: []string{"name_en", "country_code"},
		OrderBy:      "seq",
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert universities")
	}
	return n, nil
}

func (s *PostgresStore) ListMissingNameJA(ctx context.Context, afterSeq int64, limit int) ([]model.University, error) {
	return s.listUniversities(ctx,
		`SELECT `+universityColumns+` FROM universities u
		 WHERE u.name_ja IS NULL AND u.seq > $1 ORDER BY u.seq LIMIT $2`,
		afterSeq, limit)
}

func (s *PostgresStore) ListMissingCoordinates(ctx context.Context, afterSeq int64, limit int) ([]model.University, error) {
	return s.listUniversities(ctx,
		`SELECT `+universityColumns+` FROM universities u
		 WHERE u.latitude IS NULL AND u.seq > $1 ORDER BY u.seq LIMIT $2`,
		afterSeq, limit)
}

func (s *PostgresStore) SetNormalizedName(ctx context.Context, id, key string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE universities SET normalized_name = $1, updated_at = now() WHERE id = $2`,
		key, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set normalized name %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "university %s", id)
	}
	return nil
}

func (s *PostgresStore) SetNameJA(ctx context.Context, id, nameJA string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE universities SET name_ja = $1, updated_at = now() WHERE id = $2 AND name_ja IS NULL`,
		nameJA, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set name_ja %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetCoordinates(ctx context.Context, id string, lat, lng float64, city string) (bool, error) {
	point, err := pointEWKB(lat, lng)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE universities
		 SET latitude = $1, longitude = $2, location = ST_GeomFromEWKB($3),
		     city = COALESCE(city, $4), updated_at = now()
		 WHERE id = $5 AND latitude IS NULL AND longitude IS NULL`,
		lat, lng, point, nullable(city), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set coordinates %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Universities ---

func (s *PostgresStore) GetUniversity(ctx context.Context, id string) (*model.University, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+universityColumns+` FROM universities u WHERE u.id = $1`, id)
	u, err := scanPgUniversity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "university %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get university %s", id)
	}
	return u, nil
}

func (s *PostgresStore) SearchUniversities(ctx context.Context, filter Filter) (*Page, error) {
	where, q := searchWhere(postgresDialect, filter)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM universities u WHERE `+where, q.args...,
	).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count search")
	}

	limit, offset := filter.limit(), filter.offset()
	lp, op := q.add(limit), q.add(offset)
	items, err := s.listUniversities(ctx,
		`SELECT `+universityColumns+` FROM universities u WHERE `+where+
			` ORDER BY u.seq LIMIT `+lp+` OFFSET `+op,
		q.args...)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *PostgresStore) CreateUniversity(ctx context.Context, u *model.University) error {
	prepareNew(u, time.Now().UTC())

	var point []byte
	if u.HasCoordinates() {
		var err error
		if point, err = pointEWKB(*u.Latitude, *u.Longitude); err != nil {
			return err
		}
	}

	err := s.pool.QueryRow(ctx, `INSERT INTO universities
		(id, country_code, continent, name_en, name_ja, normalized_name, city,
		 latitude, longitude, location, website, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_GeomFromEWKB($10), $11, $12, $13, $14)
		RETURNING seq`,
		u.ID, u.CountryCode, u.Continent, u.NameEN, u.NameJA, u.NormalizedName, u.City,
		u.Latitude, u.Longitude, point, u.Website, u.Tags, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.Seq)
	if isPgCode(err, pgUniqueViolation) {
		return eris.Wrapf(ErrDuplicate, "university %q (%s)", u.NameEN, u.CountryCode)
	}
	return eris.Wrap(err, "postgres: create university")
}

func (s *PostgresStore) UpdateUniversity(ctx context.Context, id string, patch UniversityPatch) (*model.University, error) {
	var tags any
	if patch.Tags != nil {
		tags = *patch.Tags
	}
	sets, q, err := patchSet(postgresDialect, patch, tags)
	if err != nil {
		return nil, err
	}
	if patch.Latitude != nil {
		point, err := pointEWKB(*patch.Latitude, *patch.Longitude)
		if err != nil {
			return nil, err
		}
		sets += ", location = ST_GeomFromEWKB(" + q.add(point) + ")"
	}
	if sets != "" {
		sets += ", "
	}
	sets += "updated_at = now()"
	where := q.add(id)

	tag, err := s.pool.Exec(ctx, `UPDATE universities SET `+sets+` WHERE id = `+where, q.args...)
	if isPgCode(err, pgUniqueViolation) {
		return nil, eris.Wrapf(ErrDuplicate, "update university %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update university %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "university %s", id)
	}
	return s.GetUniversity(ctx, id)
}

func (s *PostgresStore) DeleteUniversity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM universities WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete university %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "university %s", id)
	}
	return nil
}

func (s *PostgresStore) CountUniversities(ctx context.Context) (*Counts, error) {
	c := &Counts{ByContinent: make(map[string]int)}
	err := s.pool.QueryRow(ctx, `SELECT
		COUNT(*),
		COUNT(name_ja),
		COUNT(latitude),
		COUNT(normalized_name),
		(SELECT COUNT(*) FROM university_aliases)
		FROM universities`,
	).Scan(&c.Total, &c.WithNameJA, &c.WithCoordinates, &c.WithNormalized, &c.Aliases)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count universities")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT continent, COUNT(*) FROM universities GROUP BY continent ORDER BY continent`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by continent")
	}
	defer rows.Close()
	for rows.Next() {
		var continent string
		var n int
		if err := rows.Scan(&continent, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan continent count")
		}
		c.ByContinent[continent] = n
	}
	return c, eris.Wrap(rows.Err(), "postgres: iterate continent counts")
}

// --- Aliases ---

func (s *PostgresStore) AddAlias(ctx context.Context, a *model.Alias) error {
	prepareAlias(a, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO university_aliases (id, university_id, alias, alias_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UniversityID, a.Alias, string(a.AliasType), a.CreatedAt,
	)
	switch {
	case isPgCode(err, pgUniqueViolation):
		return eris.Wrapf(ErrDuplicate, "alias %q for %s", a.Alias, a.UniversityID)
	case isPgCode(err, pgForeignKeyViolation):
		return eris.Wrapf(ErrNotFound, "university %s", a.UniversityID)
	case err != nil:
		return eris.Wrap(err, "postgres: add alias")
	}
	return nil
}

func (s *PostgresStore) ListAliases(ctx context.Context, universityID string) ([]model.Alias, error) {
	byID, err := s.AliasesFor(ctx, []string{universityID})
	if err != nil {
		return nil, err
	}
	return byID[universityID], nil
}

func (s *PostgresStore) AliasesFor(ctx context.Context, universityIDs []string) (map[string][]model.Alias, error) {
	out := make(map[string][]model.Alias, len(universityIDs))
	if len(universityIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, university_id, alias, alias_type, created_at FROM university_aliases
		 WHERE university_id = ANY($1) ORDER BY created_at, alias`, universityIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aliases")
	}
	defer rows.Close()

	for rows.Next() {
		var a model.Alias
		var aliasType string
		if err := rows.Scan(&a.ID, &a.UniversityID, &a.Alias, &aliasType, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alias")
		}
		a.AliasType = model.AliasType(aliasType)
		out[a.UniversityID] = append(out[a.UniversityID], a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate aliases")
}

func (s *PostgresStore) DeleteAlias(ctx context.Context, universityID, aliasID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM university_aliases WHERE id = $1 AND university_id = $2`, aliasID, universityID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete alias %s", aliasID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "alias %s", aliasID)
	}
	return nil
}

// --- helpers ---

func (s *PostgresStore) listUniversities(ctx context.Context, query string, args ...any) ([]model.University, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list universities")
	}
	defer rows.Close()

	var out []model.University
	for rows.Next() {
		u, err := scanPgUniversity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan university")
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate universities")
}

func scanPgUniversity(row scannable) (*model.University, error) {
	var u model.University
	if err := row.Scan(
		&u.Seq, &u.ID, &u.CountryCode, &u.Continent, &u.NameEN, &u.NameJA, &u.NormalizedName,
		&u.City, &u.Latitude, &u.Longitude, &u.Website, &u.Tags, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if u.Tags == nil {
		u.Tags = []string{}
	}
	return &u, nil
}

// pointEWKB encodes a WGS84 point (x = longitude, y = latitude) as EWKB.
func pointEWKB(lat, lng float64) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

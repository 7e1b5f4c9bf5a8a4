package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/university-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path. Pragmas are passed in
// the DSN so every pooled connection enforces foreign keys.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer avoids SQLITE_BUSY when enrichment workers run in parallel.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS universities (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	country_code    TEXT NOT NULL,
	continent       TEXT NOT NULL,
	name_en         TEXT NOT NULL,
	name_ja         TEXT,
	normalized_name TEXT,
	city            TEXT,
	latitude        REAL,
	longitude       REAL,
	website         TEXT,
	tags            TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name_en, country_code),
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE TABLE IF NOT EXISTS university_aliases (
	id            TEXT PRIMARY KEY,
	university_id TEXT NOT NULL REFERENCES universities(id) ON DELETE CASCADE,
	alias         TEXT NOT NULL,
	alias_type    TEXT NOT NULL DEFAULT 'other'
		CHECK (alias_type IN ('abbreviation', 'variant', 'old_name', 'other')),
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (university_id, alias)
);

CREATE INDEX IF NOT EXISTS idx_universities_normalized_name ON universities(normalized_name);
CREATE INDEX IF NOT EXISTS idx_universities_country_code ON universities(country_code);
CREATE INDEX IF NOT EXISTS idx_universities_continent ON universities(continent);
CREATE INDEX IF NOT EXISTS idx_university_aliases_university_id ON university_aliases(university_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Pipeline writes ---

func (s *SQLiteStore) InsertUniversities(ctx context.Context, unis []model.University) (int64, error) {
	if len(unis) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert universities: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO universities
		(id, country_code, continent, name_en, name_ja, normalized_name, city,
		 latitude, longitude, website, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_en, country_code) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert universities: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var inserted int64
	for i := range unis {
		u := &unis[i]
		prepareNew(u, now)
		tags, err := encodeTags(u.Tags)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			u.ID, u.CountryCode, u.Continent, u.NameEN, u.NameJA, u.NormalizedName, u.City,
			u.Latitude, u.Longitude, u.Website, tags, u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert university %q", u.NameEN)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert universities: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListMissingNameJA(ctx context.Context, afterSeq int64, limit int) ([]model.University, error) {
	return s.listUniversities(ctx,
		`SELECT `+universityColumns+` FROM universities u
		 WHERE u.name_ja IS NULL AND u.seq > ? ORDER BY u.seq LIMIT ?`,
		afterSeq, limit)
}

func (s *SQLiteStore) ListMissingCoordinates(ctx context.Context, afterSeq int64, limit int) ([]model.University, error) {
	return s.listUniversities(ctx,
		`SELECT `+universityColumns+` FROM universities u
		 WHERE (u.latitude IS NULL OR u.longitude IS NULL) AND u.seq > ? ORDER BY u.seq LIMIT ?`,
		afterSeq, limit)
}

func (s *SQLiteStore) SetNormalizedName(ctx context.Context, id, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE universities SET normalized_name = ?, updated_at = ? WHERE id = ?`,
		key, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set normalized name %s", id)
	}
	return checkRowsAffected(res, "university", id)
}

func (s *SQLiteStore) SetNameJA(ctx context.Context, id, nameJA string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE universities SET name_ja = ?, updated_at = ? WHERE id = ? AND name_ja IS NULL`,
		nameJA, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set name_ja %s", id)
	}
	return changed(res)
}

func (s *SQLiteStore) SetCoordinates(ctx context.Context, id string, lat, lng float64, city string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE universities
		 SET latitude = ?, longitude = ?, city = COALESCE(city, ?), updated_at = ?
		 WHERE id = ? AND latitude IS NULL AND longitude IS NULL`,
		lat, lng, nullable(city), time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set coordinates %s", id)
	}
	return changed(res)
}

// --- Universities ---

func (s *SQLiteStore) GetUniversity(ctx context.Context, id string) (*model.University, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+universityColumns+` FROM universities u WHERE u.id = ?`, id)
	u, err := scanSQLiteUniversity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "university %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get university %s", id)
	}
	return u, nil
}

func (s *SQLiteStore) SearchUniversities(ctx context.Context, filter Filter) (*Page, error) {
	where, q := searchWhere(sqliteDialect, filter)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM universities u WHERE `+where, q.args...,
	).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "sqlite: count search")
	}

	limit, offset := filter.limit(), filter.offset()
	page := `SELECT ` + universityColumns + ` FROM universities u WHERE ` + where +
		` ORDER BY u.seq LIMIT ` + q.add(limit) + ` OFFSET ` + q.add(offset)
	items, err := s.listUniversities(ctx, page, q.args...)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *SQLiteStore) CreateUniversity(ctx context.Context, u *model.University) error {
	prepareNew(u, time.Now().UTC())
	tags, err := encodeTags(u.Tags)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO universities
		(id, country_code, continent, name_en, name_ja, normalized_name, city,
		 latitude, longitude, website, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.CountryCode, u.Continent, u.NameEN, u.NameJA, u.NormalizedName, u.City,
		u.Latitude, u.Longitude, u.Website, tags, u.CreatedAt, u.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrDuplicate, "university %q (%s)", u.NameEN, u.CountryCode)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: create university")
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	u.Seq = seq
	return nil
}

func (s *SQLiteStore) UpdateUniversity(ctx context.Context, id string, patch UniversityPatch) (*model.University, error) {
	var tags any
	if patch.Tags != nil {
		encoded, err := encodeTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		tags = encoded
	}
	sets, q, err := patchSet(sqliteDialect, patch, tags)
	if err != nil {
		return nil, err
	}
	if sets != "" {
		sets += ", "
	}
	sets += "updated_at = " + q.add(time.Now().UTC())
	where := q.add(id)

	res, err := s.db.ExecContext(ctx, `UPDATE universities SET `+sets+` WHERE id = `+where, q.args...)
	if isSQLiteUnique(err) {
		return nil, eris.Wrapf(ErrDuplicate, "update university %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update university %s", id)
	}
	if err := checkRowsAffected(res, "university", id); err != nil {
		return nil, err
	}
	return s.GetUniversity(ctx, id)
}

func (s *SQLiteStore) DeleteUniversity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM universities WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete university %s", id)
	}
	return checkRowsAffected(res, "university", id)
}

func (s *SQLiteStore) CountUniversities(ctx context.Context) (*Counts, error) {
	c := &Counts{ByContinent: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COUNT(name_ja),
		COUNT(latitude),
		COUNT(normalized_name),
		(SELECT COUNT(*) FROM university_aliases)
		FROM universities`,
	).Scan(&c.Total, &c.WithNameJA, &c.WithCoordinates, &c.WithNormalized, &c.Aliases)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count universities")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT continent, COUNT(*) FROM universities GROUP BY continent ORDER BY continent`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by continent")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var continent string
		var n int
		if err := rows.Scan(&continent, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan continent count")
		}
		c.ByContinent[continent] = n
	}
	return c, eris.Wrap(rows.Err(), "sqlite: iterate continent counts")
}

// --- Aliases ---

func (s *SQLiteStore) AddAlias(ctx context.Context, a *model.Alias) error {
	prepareAlias(a, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO university_aliases (id, university_id, alias, alias_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UniversityID, a.Alias, string(a.AliasType), a.CreatedAt,
	)
	switch {
	case isSQLiteUnique(err):
		return eris.Wrapf(ErrDuplicate, "alias %q for %s", a.Alias, a.UniversityID)
	case isSQLiteForeignKey(err):
		return eris.Wrapf(ErrNotFound, "university %s", a.UniversityID)
	case err != nil:
		return eris.Wrap(err, "sqlite: add alias")
	}
	return nil
}

func (s *SQLiteStore) ListAliases(ctx context.Context, universityID string) ([]model.Alias, error) {
	byID, err := s.AliasesFor(ctx, []string{universityID})
	if err != nil {
		return nil, err
	}
	return byID[universityID], nil
}

func (s *SQLiteStore) AliasesFor(ctx context.Context, universityIDs []string) (map[string][]model.Alias, error) {
	out := make(map[string][]model.Alias, len(universityIDs))
	if len(universityIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(universityIDs)), ",")
	args := make([]any, len(universityIDs))
	for i, id := range universityIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, university_id, alias, alias_type, created_at FROM university_aliases
		 WHERE university_id IN (%s) ORDER BY created_at, alias`, placeholders), args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aliases")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var a model.Alias
		var aliasType string
		if err := rows.Scan(&a.ID, &a.UniversityID, &a.Alias, &aliasType, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alias")
		}
		a.AliasType = model.AliasType(aliasType)
		out[a.UniversityID] = append(out[a.UniversityID], a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate aliases")
}

func (s *SQLiteStore) DeleteAlias(ctx context.Context, universityID, aliasID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM university_aliases WHERE id = ? AND university_id = ?`, aliasID, universityID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete alias %s", aliasID)
	}
	return checkRowsAffected(res, "alias", aliasID)
}

// --- helpers ---

func (s *SQLiteStore) listUniversities(ctx context.Context, query string, args ...any) ([]model.University, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list universities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.University
	for rows.Next() {
		u, err := scanSQLiteUniversity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan university")
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate universities")
}

func scanSQLiteUniversity(row scannable) (*model.University, error) {
	var u model.University
	var tags string
	if err := row.Scan(
		&u.Seq, &u.ID, &u.CountryCode, &u.Continent, &u.NameEN, &u.NameJA, &u.NormalizedName,
		&u.City, &u.Latitude, &u.Longitude, &u.Website, &tags, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &u.Tags); err != nil {
		return nil, eris.Wrapf(err, "decode tags for %s", u.ID)
	}
	if u.Tags == nil {
		u.Tags = []string{}
	}
	return &u, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: encode tags")
	}
	return string(b), nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isSQLiteForeignKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// prepareNew fills the identity and audit fields of a record about to be
// inserted.
func prepareNew(u *model.University, now time.Time) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CountryCode = strings.ToUpper(u.CountryCode)
	if u.Tags == nil {
		u.Tags = []string{}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

func prepareAlias(a *model.Alias, now time.Time) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AliasType == "" {
		a.AliasType = model.AliasOther
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

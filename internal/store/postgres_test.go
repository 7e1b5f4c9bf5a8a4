package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/university-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var universityColumnNames = []string{
	"seq", "id", "country_code", "continent", "name_en", "name_ja", "normalized_name",
	"city", "latitude", "longitude", "website", "tags", "created_at", "updated_at",
}

func TestPostgresStore_InsertUniversities_DoNothingOnConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_universities" \(LIKE "universities" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_universities"}, insertColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("name_en", "country_code"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	batch := []model.University{
		{NameEN: "University of Tokyo", CountryCode: "jp", Continent: "Asia"},
		{NameEN: "Kyoto University", CountryCode: "JP", Continent: "Asia"},
	}
	n, err := s.InsertUniversities(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "JP", batch[0].CountryCode)
	assert.NotEmpty(t, batch[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertUniversities_StoreUnavailable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := s.InsertUniversities(context.Background(), []model.University{{NameEN: "X", CountryCode: "JP"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert universities")
}

func TestPostgresStore_ListMissingNameJA(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM universities u\s+WHERE u.name_ja IS NULL AND u.seq > \$1 ORDER BY u.seq LIMIT \$2`).
		WithArgs(int64(10), 2).
		WillReturnRows(pgxmock.NewRows(universityColumnNames).
			AddRow(int64(11), "id-11", "JP", "Asia", "University of Tokyo", nil, ptr("univ tokyo"),
				nil, nil, nil, nil, []string{"national"}, now, now).
			AddRow(int64(12), "id-12", "JP", "Asia", "Kyoto University", nil, nil,
				nil, nil, nil, ptr("https://www.kyoto-u.ac.jp"), []string(nil), now, now))

	got, err := s.ListMissingNameJA(context.Background(), 10, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(11), got[0].Seq)
	assert.Equal(t, "univ tokyo", got[0].Normalized())
	assert.Equal(t, []string{"national"}, got[0].Tags)
	assert.Nil(t, got[0].NameJA)
	assert.Equal(t, "https://www.kyoto-u.ac.jp", *got[1].Website)
	assert.Equal(t, []string{}, got[1].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetNameJA_OnlyWhenAbsent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE universities SET name_ja = \$1, updated_at = now\(\) WHERE id = \$2 AND name_ja IS NULL`).
		WithArgs("東京大学", "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE universities SET name_ja`).
		WithArgs("東京大学", "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.SetNameJA(context.Background(), "id-1", "東京大学")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNameJA(context.Background(), "id-1", "東京大学")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCoordinates_WritesPoint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	point, err := pointEWKB(35.7126, 139.7619)
	require.NoError(t, err)

	mock.ExpectExec(`SET latitude = \$1, longitude = \$2, location = ST_GeomFromEWKB\(\$3\)`).
		WithArgs(35.7126, 139.7619, point, "Tokyo", "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.SetCoordinates(context.Background(), "id-1", 35.7126, 139.7619, "Tokyo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCoordinates_NoCityPassesNull(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SET latitude`).
		WithArgs(1.5, 2.5, pgxmock.AnyArg(), nil, "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.SetCoordinates(context.Background(), "id-1", 1.5, 2.5, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUniversity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM universities u WHERE u.id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUniversity(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUniversity_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO universities`).
		WithArgs(pgxmock.AnyArg(), "JP", "Asia", "Keio University", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "universities_natural_key"})

	u := model.University{NameEN: "Keio University", CountryCode: "JP", Continent: "Asia"}
	err := s.CreateUniversity(context.Background(), &u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUniversity_ReturnsSeq(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`RETURNING seq`).
		WithArgs(pgxmock.AnyArg(), "JP", "Asia", "Osaka University", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	u := model.University{NameEN: "Osaka University", CountryCode: "JP", Continent: "Asia"}
	require.NoError(t, s.CreateUniversity(context.Background(), &u))
	assert.Equal(t, int64(42), u.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddAlias_UnknownUniversity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO university_aliases`).
		WithArgs(pgxmock.AnyArg(), "missing", "Todai", "abbreviation", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := s.AddAlias(context.Background(), &model.Alias{
		UniversityID: "missing", Alias: "Todai", AliasType: model.AliasAbbreviation,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteUniversity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM universities WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteUniversity(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchUniversities(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM universities u WHERE 1=1 AND \(u.name_en ILIKE \$1`).
		WithArgs("%tokyo%", "tokyo", "JP", "national").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`ORDER BY u.seq LIMIT \$5 OFFSET \$6`).
		WithArgs("%tokyo%", "tokyo", "JP", "national", 20, 0).
		WillReturnRows(pgxmock.NewRows(universityColumnNames).
			AddRow(int64(1), "id-1", "JP", "Asia", "University of Tokyo", ptr("東京大学"), ptr("univ tokyo"),
				ptr("Tokyo"), ptr(35.7), ptr(139.7), nil, []string{"national"}, now, now))

	page, err := s.SearchUniversities(context.Background(), Filter{Query: "tokyo", CountryCode: "jp", Tag: "national"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "東京大学", *page.Items[0].NameJA)
	assert.True(t, page.Items[0].HasCoordinates())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUniversity_RequiresPairedCoordinates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpdateUniversity(context.Background(), "id-1", UniversityPatch{Longitude: ptr(1.0)})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS universities`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointEWKB_RoundTrip(t *testing.T) {
	data, err := pointEWKB(35.7126, 139.7619)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 4326, p.SRID())
	assert.InDelta(t, 139.7619, p.X(), 1e-9)
	assert.InDelta(t, 35.7126, p.Y(), 1e-9)
}

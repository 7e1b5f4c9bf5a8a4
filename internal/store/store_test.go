package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/university-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr[T any](v T) *T { return &v }

func uni(name, code, continent string) model.University {
	return model.University{
		NameEN:      name,
		CountryCode: code,
		Continent:   continent,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertIgnoresExistingNaturalKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.InsertUniversities(ctx, []model.University{
			uni("University of Tokyo", "JP", "Asia"),
			uni("Kyoto University", "JP", "Asia"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.InsertUniversities(ctx, []model.University{
			uni("University of Tokyo", "JP", "Asia"),
			uni("University of Tokyo", "US", "North America"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		c, err := s.CountUniversities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, c.Total)
		assert.Equal(t, 2, c.ByContinent["Asia"])
		assert.Equal(t, 1, c.ByContinent["North America"])
	})

	t.Run("InsertEmpty", func(t *testing.T) {
		s := newStore(t)
		n, err := s.InsertUniversities(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ListMissingNameJAPagesInInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		batch := []model.University{
			uni("A University", "JP", "Asia"),
			uni("B University", "JP", "Asia"),
			uni("C University", "JP", "Asia"),
		}
		_, err := s.InsertUniversities(ctx, batch)
		require.NoError(t, err)

		page, err := s.ListMissingNameJA(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "A University", page[0].NameEN)
		assert.Equal(t, "B University", page[1].NameEN)
		assert.Less(t, page[0].Seq, page[1].Seq)

		ok, err := s.SetNameJA(ctx, page[0].ID, "A大学")
		require.NoError(t, err)
		assert.True(t, ok)

		next, err := s.ListMissingNameJA(ctx, page[1].Seq, 2)
		require.NoError(t, err)
		require.Len(t, next, 1)
		assert.Equal(t, "C University", next[0].NameEN)

		all, err := s.ListMissingNameJA(ctx, 0, 10)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("SetNameJAOnlyWhenAbsent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("University of Tokyo", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))

		ok, err := s.SetNameJA(ctx, u.ID, "東京大学")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetNameJA(ctx, u.ID, "別の名前")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetUniversity(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.NameJA)
		assert.Equal(t, "東京大学", *got.NameJA)
	})

	t.Run("SetCoordinatesOnlyWhenAbsent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("Kyoto University", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))

		missing, err := s.ListMissingCoordinates(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, missing, 1)

		ok, err := s.SetCoordinates(ctx, u.ID, 35.0262, 135.7808, "Kyoto")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetCoordinates(ctx, u.ID, 1, 2, "Elsewhere")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetUniversity(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.HasCoordinates())
		assert.InDelta(t, 35.0262, *got.Latitude, 1e-9)
		assert.InDelta(t, 135.7808, *got.Longitude, 1e-9)
		require.NotNil(t, got.City)
		assert.Equal(t, "Kyoto", *got.City)

		missing, err = s.ListMissingCoordinates(ctx, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("SetCoordinatesKeepsExistingCity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("Osaka University", "JP", "Asia")
		u.City = ptr("Suita")
		require.NoError(t, s.CreateUniversity(ctx, &u))

		ok, err := s.SetCoordinates(ctx, u.ID, 34.8222, 135.5245, "Osaka")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.GetUniversity(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Suita", *got.City)
	})

	t.Run("SetNormalizedName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("University of Tokyo", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))
		require.NoError(t, s.SetNormalizedName(ctx, u.ID, "univ tokyo"))

		got, err := s.GetUniversity(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "univ tokyo", got.Normalized())

		err = s.SetNormalizedName(ctx, "missing", "x")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("CreateDuplicateNaturalKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := uni("Keio University", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &a))
		assert.NotEmpty(t, a.ID)
		assert.NotZero(t, a.Seq)

		b := uni("Keio University", "JP", "Asia")
		err := s.CreateUniversity(ctx, &b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicate))

		n, err := s.InsertUniversities(ctx, []model.University{uni("Keio University", "JP", "Asia")})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("GetUniversityNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetUniversity(context.Background(), "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateUniversity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("Waseda University", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))

		tags := []string{"private", "tokyo"}
		got, err := s.UpdateUniversity(ctx, u.ID, UniversityPatch{
			NameJA:    ptr("早稲田大学"),
			Website:   ptr("https://www.waseda.jp"),
			Latitude:  ptr(35.7089),
			Longitude: ptr(139.7196),
			Tags:      &tags,
		})
		require.NoError(t, err)
		assert.Equal(t, "早稲田大学", *got.NameJA)
		assert.Equal(t, "https://www.waseda.jp", *got.Website)
		assert.Equal(t, tags, got.Tags)
		assert.True(t, got.HasCoordinates())

		_, err = s.UpdateUniversity(ctx, u.ID, UniversityPatch{Latitude: ptr(1.0)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set together")

		_, err = s.UpdateUniversity(ctx, "missing", UniversityPatch{NameJA: ptr("x")})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateUniversityNaturalKeyCollision", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := uni("Tohoku University", "JP", "Asia")
		b := uni("Tohoku Univ", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &a))
		require.NoError(t, s.CreateUniversity(ctx, &b))

		_, err := s.UpdateUniversity(ctx, b.ID, UniversityPatch{NameEN: ptr("Tohoku University")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicate))
	})

	t.Run("AliasesCascadeOnDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("Tokyo Institute of Technology", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))

		a := model.Alias{UniversityID: u.ID, Alias: "Tokyo Tech", AliasType: model.AliasAbbreviation}
		require.NoError(t, s.AddAlias(ctx, &a))
		assert.NotEmpty(t, a.ID)

		dup := model.Alias{UniversityID: u.ID, Alias: "Tokyo Tech"}
		assert.True(t, errors.Is(s.AddAlias(ctx, &dup), ErrDuplicate))

		orphan := model.Alias{UniversityID: "missing", Alias: "Ghost"}
		assert.True(t, errors.Is(s.AddAlias(ctx, &orphan), ErrNotFound))

		aliases, err := s.ListAliases(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, aliases, 1)
		assert.Equal(t, model.AliasAbbreviation, aliases[0].AliasType)

		require.NoError(t, s.DeleteUniversity(ctx, u.ID))

		byID, err := s.AliasesFor(ctx, []string{u.ID})
		require.NoError(t, err)
		assert.Empty(t, byID[u.ID])

		c, err := s.CountUniversities(ctx)
		require.NoError(t, err)
		assert.Zero(t, c.Aliases)

		assert.True(t, errors.Is(s.DeleteUniversity(ctx, u.ID), ErrNotFound))
	})

	t.Run("DeleteAlias", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := uni("Hitotsubashi University", "JP", "Asia")
		require.NoError(t, s.CreateUniversity(ctx, &u))
		a := model.Alias{UniversityID: u.ID, Alias: "Hitotsubashi"}
		require.NoError(t, s.AddAlias(ctx, &a))
		assert.Equal(t, model.AliasOther, a.AliasType)

		require.NoError(t, s.DeleteAlias(ctx, u.ID, a.ID))
		assert.True(t, errors.Is(s.DeleteAlias(ctx, u.ID, a.ID), ErrNotFound))
	})

	t.Run("Search", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tokyo := uni("University of Tokyo", "JP", "Asia")
		tokyo.NameJA = ptr("東京大学")
		tokyo.NormalizedName = ptr("univ tokyo")
		tokyo.Tags = []string{"national"}
		harvard := uni("Harvard University", "US", "North America")
		harvard.Tags = []string{"private"}
		tech := uni("Tokyo Institute of Technology", "JP", "Asia")
		for _, u := range []*model.University{&tokyo, &harvard, &tech} {
			require.NoError(t, s.CreateUniversity(ctx, u))
		}
		require.NoError(t, s.AddAlias(ctx, &model.Alias{UniversityID: tech.ID, Alias: "Titech"}))

		page, err := s.SearchUniversities(ctx, Filter{Query: "tokyo"})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, defaultPageLimit, page.Limit)

		page, err = s.SearchUniversities(ctx, Filter{Query: "東京"})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, tokyo.ID, page.Items[0].ID)

		page, err = s.SearchUniversities(ctx, Filter{Query: "titech"})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, tech.ID, page.Items[0].ID)

		page, err = s.SearchUniversities(ctx, Filter{Query: "The University of Tokyo"})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total, "normalized key equality")

		page, err = s.SearchUniversities(ctx, Filter{CountryCode: "jp"})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)

		page, err = s.SearchUniversities(ctx, Filter{Continent: "North America"})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)

		page, err = s.SearchUniversities(ctx, Filter{Tag: "national"})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, tokyo.ID, page.Items[0].ID)

		page, err = s.SearchUniversities(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, harvard.ID, page.Items[0].ID)

		page, err = s.SearchUniversities(ctx, Filter{Query: "100%"})
		require.NoError(t, err)
		assert.Zero(t, page.Total)

		page, err = s.SearchUniversities(ctx, Filter{Query: "tokyo", CountryCode: "JP", Tag: "national", Limit: 5})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, tokyo.ID, page.Items[0].ID)

		page, err = s.SearchUniversities(ctx, Filter{Query: "tokyo", Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, tech.ID, page.Items[0].ID)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestFilterLimits(t *testing.T) {
	assert.Equal(t, defaultPageLimit, Filter{}.limit())
	assert.Equal(t, maxPageLimit, Filter{Limit: 1000}.limit())
	assert.Equal(t, 5, Filter{Limit: 5}.limit())
	assert.Equal(t, 0, Filter{Offset: -3}.offset())
}

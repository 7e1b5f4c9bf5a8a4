package geoclass

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultClassifierT(t *testing.T) *Classifier {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefault_TablesValid(t *testing.T) {
	c := defaultClassifierT(t)
	assert.NotEmpty(t, c.Version())
}

func TestResolve_CountryName(t *testing.T) {
	c := defaultClassifierT(t)

	cl, err := c.Resolve("Japan")
	require.NoError(t, err)
	assert.Equal(t, "JP", cl.CountryCode)
	assert.Equal(t, "Asia", cl.Continent)
}

func TestResolve_LegacyAlias(t *testing.T) {
	c := defaultClassifierT(t)

	tests := map[string]string{
		"Korea, Republic of":                    "KR",
		"Iran, Islamic Republic of":             "IR",
		"Viet Nam":                              "VN",
		"Russian Federation":                    "RU",
		"Congo, the Democratic Republic of the": "CD",
		"Swaziland":                             "SZ",
		"Ceylon":                                "LK",
	}
	for raw, want := range tests {
		cl, err := c.Resolve(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, cl.CountryCode, raw)
	}
}

func TestResolve_TwoLetterCode(t *testing.T) {
	c := defaultClassifierT(t)

	cl, err := c.Resolve("US")
	require.NoError(t, err)
	assert.Equal(t, "US", cl.CountryCode)
	assert.Equal(t, "North America", cl.Continent)
}

func TestResolve_UppercaseRetry(t *testing.T) {
	c := defaultClassifierT(t)

	cl, err := c.Resolve("jp")
	require.NoError(t, err)
	assert.Equal(t, "JP", cl.CountryCode)

	cl, err = c.Resolve("  united kingdom ")
	require.NoError(t, err)
	assert.Equal(t, "GB", cl.CountryCode)
	assert.Equal(t, "Europe", cl.Continent)

	cl, err = c.Resolve("KOREA, REPUBLIC OF")
	require.NoError(t, err)
	assert.Equal(t, "KR", cl.CountryCode)
}

func TestResolve_Unclassified(t *testing.T) {
	c := defaultClassifierT(t)

	for _, raw := range []string{"Atlantis", "", "   ", "ZZ", "Japanland"} {
		_, err := c.Resolve(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrUnclassifiedCountry), raw)
	}
}

func TestContinent(t *testing.T) {
	c := defaultClassifierT(t)

	got, ok := c.Continent("br")
	assert.True(t, ok)
	assert.Equal(t, "South America", got)

	_, ok = c.Continent("ZZ")
	assert.False(t, ok)
}

func TestLoad_DetectsTableDrift(t *testing.T) {
	data := []byte(`
version: test
aliases:
  "Nippon": "JP"
countries:
  "Japan": "JP"
  "Atlantis": "AT"
continents:
  "JP": Asia
`)
	_, err := Load(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Atlantis=AT")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load([]byte("countries: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse tables")
}

func TestNew_CustomTables(t *testing.T) {
	c, err := New(Tables{
		Version:    "t1",
		Aliases:    map[string]string{"Nippon": "jp"},
		Countries:  map[string]string{"Japan": "JP"},
		Continents: map[string]string{"jp": "Asia"},
	})
	require.NoError(t, err)

	cl, err := c.Resolve("NIPPON")
	require.NoError(t, err)
	assert.Equal(t, Classification{CountryCode: "JP", Continent: "Asia"}, cl)
}

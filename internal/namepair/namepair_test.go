package namepair

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/university-cli/internal/model"
)

func TestDetectColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		en, ja int
	}{
		{"plain", []string{"English", "Japanese"}, 0, 1},
		{"snake", []string{"id", "name_ja", "name_en"}, 2, 1},
		{"tokens", []string{"No.", "Name (EN)", "Name (JA)"}, 1, 2},
		{"renamed", []string{"Institution Name in English", "Institution Name in Japanese"}, 0, 1},
		{"japanese headers", []string{"番号", "大学名（日本語）", "大学名（英語）"}, 2, 1},
		{"upper", []string{" NAME_EN ", " NAME_JA "}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en, ja, err := DetectColumns(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.en, en)
			assert.Equal(t, tt.ja, ja)
		})
	}
}

func TestDetectColumns_Missing(t *testing.T) {
	for _, header := range [][]string{
		{"name", "kana"},
		{"English"},
		{"Japanese", "opening"},
		nil,
	} {
		_, _, err := DetectColumns(header)
		assert.True(t, errors.Is(err, ErrNoColumns), "%q", header)
	}
}

func TestParseCSV(t *testing.T) {
	in := "code,Japanese Name,English Name\n" +
		"1,東京大学,The University of Tokyo\n" +
		"2,,Missing Japanese\n" +
		"3,京都大学,Kyoto University\n" +
		"4\n"

	pairs, err := ParseCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []model.NamePair{
		{EN: "The University of Tokyo", JA: "東京大学"},
		{EN: "Kyoto University", JA: "京都大学"},
	}, pairs)
}

func TestParseCSV_BadHeader(t *testing.T) {
	_, err := ParseCSV(context.Background(), strings.NewReader("a,b\n1,2\n3,4\n"))
	assert.True(t, errors.Is(err, ErrNoColumns))

	_, err = ParseCSV(context.Background(), strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoColumns))
}

func TestParseJSON_PreservesOrder(t *testing.T) {
	in := `{
		"Waseda University": "早稲田大学",
		"Keio University": "慶應義塾大学",
		"Bogus": null,
		"Numbers": 12,
		"": "空",
		"Hokkaido University": "北海道大学"
	}`
	pairs, err := ParseJSON(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []model.NamePair{
		{EN: "Waseda University", JA: "早稲田大学"},
		{EN: "Keio University", JA: "慶應義塾大学"},
		{EN: "Hokkaido University", JA: "北海道大学"},
	}, pairs)
}

func TestParseJSON_NotObject(t *testing.T) {
	_, err := ParseJSON(strings.NewReader(`["a","b"]`))
	assert.Error(t, err)

	_, err = ParseJSON(strings.NewReader(`{"a":"b"`))
	assert.Error(t, err)
}

func TestBuildIndex_FirstPairWins(t *testing.T) {
	ix := BuildIndex([]model.NamePair{
		{EN: "The University of Tokyo", JA: "東京大学"},
		{EN: "University of Tokyo", JA: "別の名前"},
		{EN: "Kyoto University", JA: "京都大学"},
	})

	assert.Equal(t, 2, ix.Len())
	ja, ok := ix.Lookup("univ tokyo")
	require.True(t, ok)
	assert.Equal(t, "東京大学", ja)
}

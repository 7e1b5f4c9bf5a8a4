package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceInstitution_Homepage(t *testing.T) {
	tests := []struct {
		name string
		in   SourceInstitution
		want string
	}{
		{"web page first", SourceInstitution{WebPages: []string{" ", "https://www.u-tokyo.ac.jp/"}, Domains: []string{"u-tokyo.ac.jp"}}, "https://www.u-tokyo.ac.jp/"},
		{"domain fallback", SourceInstitution{Domains: []string{"", " kyoto-u.ac.jp "}}, "https://kyoto-u.ac.jp"},
		{"nothing", SourceInstitution{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Homepage())
		})
	}
}

func TestAliasType_Valid(t *testing.T) {
	for _, at := range []AliasType{AliasAbbreviation, AliasVariant, AliasOldName, AliasOther} {
		assert.True(t, at.Valid(), at)
	}
	assert.False(t, AliasType("nickname").Valid())
	assert.False(t, AliasType("").Valid())
}

func TestUniversity_Helpers(t *testing.T) {
	lat := 35.7
	u := University{NameEN: "University of Tokyo", CountryCode: "JP", Latitude: &lat}
	assert.False(t, u.HasCoordinates())
	assert.Equal(t, "", u.Normalized())
	assert.Equal(t, NaturalKey{NameEN: "University of Tokyo", CountryCode: "JP"}, u.NaturalKey())

	lng := 139.7
	u.Longitude = &lng
	u.NormalizedName = StringPtr("univ tokyo")
	assert.True(t, u.HasCoordinates())
	assert.Equal(t, "univ tokyo", u.Normalized())
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	p := StringPtr("東京大学")
	if assert.NotNil(t, p) {
		assert.Equal(t, "東京大学", *p)
	}
}

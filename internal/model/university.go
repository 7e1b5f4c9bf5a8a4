// Package model defines the canonical university records and the transient
// source shapes consumed by the import and enrichment pipeline.
package model

import (
	"strings"
	"time"
)

// University is the canonical directory record. The pair (NameEN, CountryCode)
// is the natural key.
type University struct {
	Seq            int64     `json:"-"`
	ID             string    `json:"id"`
	CountryCode    string    `json:"country_code"`
	Continent      string    `json:"continent"`
	NameEN         string    `json:"name_en"`
	NameJA         *string   `json:"name_ja,omitempty"`
	NormalizedName *string   `json:"normalized_name,omitempty"`
	City           *string   `json:"city,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Website        *string   `json:"website,omitempty"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NaturalKey returns the (name_en, country_code) identity of the record.
func (u *University) NaturalKey() NaturalKey {
	return NaturalKey{NameEN: u.NameEN, CountryCode: u.CountryCode}
}

// HasCoordinates reports whether both latitude and longitude are set.
func (u *University) HasCoordinates() bool {
	return u.Latitude != nil && u.Longitude != nil
}

// Normalized returns the cached comparison key, or "" when it has not been
// computed yet.
func (u *University) Normalized() string {
	if u.NormalizedName == nil {
		return ""
	}
	return *u.NormalizedName
}

// NaturalKey identifies a university independently of its opaque ID.
type NaturalKey struct {
	NameEN      string
	CountryCode string
}

// AliasType classifies an alternate name.
type AliasType string

// Alias types.
const (
	AliasAbbreviation AliasType = "abbreviation"
	AliasVariant      AliasType = "variant"
	AliasOldName      AliasType = "old_name"
	AliasOther        AliasType = "other"
)

// Valid reports whether t is one of the known alias types.
func (t AliasType) Valid() bool {
	switch t {
	case AliasAbbreviation, AliasVariant, AliasOldName, AliasOther:
		return true
	default:
		return false
	}
}

// Alias is an alternate name owned by exactly one university.
type Alias struct {
	ID           string    `json:"id"`
	UniversityID string    `json:"university_id"`
	Alias        string    `json:"alias"`
	AliasType    AliasType `json:"alias_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// SourceInstitution is one row of the bulk domains/names feed.
type SourceInstitution struct {
	Name         string   `json:"name"`
	Country      string   `json:"country"`
	AlphaTwoCode string   `json:"alpha_two_code,omitempty"`
	Domains      []string `json:"domains,omitempty"`
	WebPages     []string `json:"web_pages,omitempty"`
}

// Homepage returns the first usable web page, falling back to the first domain.
func (s SourceInstitution) Homepage() string {
	for _, p := range s.WebPages {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	for _, d := range s.Domains {
		if d = strings.TrimSpace(d); d != "" {
			return "https://" + d
		}
	}
	return ""
}

// NamePair links an English institution name to its Japanese name.
type NamePair struct {
	EN string `json:"en"`
	JA string `json:"ja"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

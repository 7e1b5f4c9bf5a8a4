package ror

import "strings"

// Organization is one search result. Both the v2 shape (names, locations
// with geonames_details) and the v1 shape (name, addresses, country) decode
// into it; the accessors pick whichever is present.
type Organization struct {
	ID        string     `json:"id"`
	Names     []Name     `json:"names,omitempty"`
	Locations []Location `json:"locations,omitempty"`

	// v1 fields.
	Name      string     `json:"name,omitempty"`
	Addresses []Location `json:"addresses,omitempty"`
	Country   *Country   `json:"country,omitempty"`
}

// Name is a v2 organization name.
type Name struct {
	Value string   `json:"value"`
	Types []string `json:"types,omitempty"`
	Lang  string   `json:"lang,omitempty"`
}

// Location carries either a structured geonames block or a legacy flat
// coordinate pair.
type Location struct {
	GeonamesID      int64            `json:"geonames_id,omitempty"`
	GeonamesDetails *GeonamesDetails `json:"geonames_details,omitempty"`

	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
	City string   `json:"city,omitempty"`
}

// GeonamesDetails is the structured geocoded block of a v2 location.
type GeonamesDetails struct {
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Name        string   `json:"name,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
	CountryName string   `json:"country_name,omitempty"`
}

// Country is the v1 country block.
type Country struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
}

// Point is an extracted coordinate with the city it was reported for.
type Point struct {
	Lat  float64
	Lng  float64
	City string
}

// DisplayName returns the ror_display name, then the first label, then the
// v1 name.
func (o *Organization) DisplayName() string {
	for _, want := range []string{"ror_display", "label"} {
		for _, n := range o.Names {
			for _, t := range n.Types {
				if t == want {
					return n.Value
				}
			}
		}
	}
	if len(o.Names) > 0 && o.Name == "" {
		return o.Names[0].Value
	}
	return o.Name
}

// CountryCode returns the uppercased country of the first location with a
// structured block, falling back to the v1 country.
func (o *Organization) CountryCode() string {
	for _, l := range o.Locations {
		if l.GeonamesDetails != nil && l.GeonamesDetails.CountryCode != "" {
			return strings.ToUpper(l.GeonamesDetails.CountryCode)
		}
	}
	if o.Country != nil {
		return strings.ToUpper(o.Country.CountryCode)
	}
	return ""
}

// Coordinates returns the first complete coordinate pair, trying structured
// geonames blocks, then flat location pairs, then v1 addresses. A pair with
// only one of lat or lng is never returned.
func (o *Organization) Coordinates() (Point, bool) {
	for _, l := range o.Locations {
		if d := l.GeonamesDetails; d != nil && d.Lat != nil && d.Lng != nil {
			return Point{Lat: *d.Lat, Lng: *d.Lng, City: d.Name}, true
		}
	}
	for _, l := range o.Locations {
		if p, ok := l.flat(); ok {
			return p, true
		}
	}
	for _, l := range o.Addresses {
		if p, ok := l.flat(); ok {
			return p, true
		}
	}
	return Point{}, false
}

func (l Location) flat() (Point, bool) {
	if l.Lat == nil || l.Lng == nil {
		return Point{}, false
	}
	city := l.City
	if city == "" && l.GeonamesDetails != nil {
		city = l.GeonamesDetails.Name
	}
	return Point{Lat: *l.Lat, Lng: *l.Lng, City: city}, true
}

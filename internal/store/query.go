package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/university-cli/internal/normalize"
)

// dialect captures the SQL differences between SQLite and Postgres that the
// shared query builders care about.
type dialect struct {
	placeholder func(n int) string
	like        string
	hasTag      func(param string) string
}

var sqliteDialect = dialect{
	placeholder: func(n int) string { return "?" + strconv.Itoa(n) },
	like:        "LIKE",
	hasTag: func(p string) string {
		return "EXISTS (SELECT 1 FROM json_each(u.tags) WHERE json_each.value = " + p + ")"
	},
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	like:        "ILIKE",
	hasTag:      func(p string) string { return p + " = ANY(u.tags)" },
}

// queryArgs accumulates positional arguments and hands out placeholders.
type queryArgs struct {
	d    dialect
	args []any
}

func (q *queryArgs) add(v any) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

// searchWhere builds the WHERE clause for SearchUniversities.
func searchWhere(d dialect, f Filter) (string, *queryArgs) {
	q := &queryArgs{d: d}
	conds := []string{"1=1"}

	if text := strings.TrimSpace(f.Query); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		p := q.add(pattern)
		textConds := []string{
			fmt.Sprintf("u.name_en %s %s ESCAPE '\\'", d.like, p),
			fmt.Sprintf("u.name_ja %s %s ESCAPE '\\'", d.like, p),
			fmt.Sprintf("EXISTS (SELECT 1 FROM university_aliases a WHERE a.university_id = u.id AND a.alias %s %s ESCAPE '\\')", d.like, p),
		}
		if key := normalize.Name(text); key != "" {
			textConds = append(textConds, "u.normalized_name = "+q.add(key))
		}
		conds = append(conds, "("+strings.Join(textConds, " OR ")+")")
	}
	if f.CountryCode != "" {
		conds = append(conds, "u.country_code = "+q.add(strings.ToUpper(f.CountryCode)))
	}
	if f.Continent != "" {
		conds = append(conds, "u.continent = "+q.add(f.Continent))
	}
	if f.Tag != "" {
		conds = append(conds, d.hasTag(q.add(f.Tag)))
	}
	return strings.Join(conds, " AND "), q
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// patchSet builds the SET clause for UpdateUniversity. tags are encoded by
// the caller because the two stores persist them differently.
func patchSet(d dialect, p UniversityPatch, tags any) (string, *queryArgs, error) {
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return "", nil, eris.New("store: latitude and longitude must be set together")
	}

	q := &queryArgs{d: d}
	var sets []string
	set := func(col string, v any) {
		sets = append(sets, col+" = "+q.add(v))
	}

	if p.NameEN != nil {
		set("name_en", *p.NameEN)
	}
	if p.NameJA != nil {
		set("name_ja", nullable(*p.NameJA))
	}
	if p.NormalizedName != nil {
		set("normalized_name", nullable(*p.NormalizedName))
	}
	if p.CountryCode != nil {
		set("country_code", *p.CountryCode)
	}
	if p.Continent != nil {
		set("continent", *p.Continent)
	}
	if p.City != nil {
		set("city", nullable(*p.City))
	}
	if p.Website != nil {
		set("website", nullable(*p.Website))
	}
	if p.Latitude != nil {
		set("latitude", *p.Latitude)
		set("longitude", *p.Longitude)
	}
	if p.Tags != nil {
		set("tags", tags)
	}
	return strings.Join(sets, ", "), q, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

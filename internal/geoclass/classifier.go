// Package geoclass resolves free-text country names and codes to ISO-3166
// alpha-2 codes and continent labels using static, versioned tables.
package geoclass

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrUnclassifiedCountry is returned when country text cannot be resolved.
var ErrUnclassifiedCountry = eris.New("geoclass: unclassified country")

//go:embed tables.yaml
var defaultTables []byte

// Tables is the on-disk shape of the lookup tables.
type Tables struct {
	Version    string            `yaml:"version"`
	Aliases    map[string]string `yaml:"aliases"`
	Countries  map[string]string `yaml:"countries"`
	Continents map[string]string `yaml:"continents"`
}

// Classification is the resolved country and continent of a record.
type Classification struct {
	CountryCode string
	Continent   string
}

// Classifier resolves country text. It is read-only after construction and
// safe for concurrent use.
type Classifier struct {
	version      string
	aliases      map[string]string
	aliasesUpper map[string]string
	names        map[string]string
	namesUpper   map[string]string
	continents   map[string]string
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
	defaultErr        error
)

// Default returns the classifier built from the embedded tables. The tables
// are decoded and validated once per process.
func Default() (*Classifier, error) {
	defaultOnce.Do(func() {
		defaultClassifier, defaultErr = Load(defaultTables)
	})
	return defaultClassifier, defaultErr
}

// Load decodes YAML tables and validates that every country code referenced
// by the alias and name tables has a continent.
func Load(data []byte) (*Classifier, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "geoclass: parse tables")
	}
	return New(t)
}

// New builds a classifier from decoded tables.
func New(t Tables) (*Classifier, error) {
	c := &Classifier{
		version:      t.Version,
		aliases:      make(map[string]string, len(t.Aliases)),
		aliasesUpper: make(map[string]string, len(t.Aliases)),
		names:        make(map[string]string, len(t.Countries)),
		namesUpper:   make(map[string]string, len(t.Countries)),
		continents:   make(map[string]string, len(t.Continents)),
	}

	for code, continent := range t.Continents {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(code) != 2 || strings.TrimSpace(continent) == "" {
			return nil, eris.Errorf("geoclass: invalid continent entry %q=%q", code, continent)
		}
		c.continents[code] = continent
	}

	var missing []string
	add := func(exact, upper map[string]string, name, code string) {
		code = strings.ToUpper(strings.TrimSpace(code))
		name = strings.TrimSpace(name)
		if _, ok := c.continents[code]; !ok {
			missing = append(missing, name+"="+code)
		}
		exact[name] = code
		upper[strings.ToUpper(name)] = code
	}
	for name, code := range t.Aliases {
		add(c.aliases, c.aliasesUpper, name, code)
	}
	for name, code := range t.Countries {
		add(c.names, c.namesUpper, name, code)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, eris.Errorf("geoclass: tables %s: codes without continent: %s",
			t.Version, strings.Join(missing, ", "))
	}
	return c, nil
}

// Version returns the version label of the loaded tables.
func (c *Classifier) Version() string {
	return c.version
}

// Resolve maps raw country text to a code and continent. Resolution order:
// alias table, country-name table, bare 2-letter code, then the same lookups
// on the uppercased input.
func (c *Classifier) Resolve(raw string) (Classification, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Classification{}, eris.Wrap(ErrUnclassifiedCountry, "empty country")
	}

	if code, ok := c.aliases[s]; ok {
		return c.classify(code), nil
	}
	if code, ok := c.names[s]; ok {
		return c.classify(code), nil
	}
	if cl, ok := c.fromCode(s); ok {
		return cl, nil
	}

	upper := strings.ToUpper(s)
	if code, ok := c.aliasesUpper[upper]; ok {
		return c.classify(code), nil
	}
	if code, ok := c.namesUpper[upper]; ok {
		return c.classify(code), nil
	}
	if cl, ok := c.fromCode(upper); ok {
		return cl, nil
	}

	return Classification{}, eris.Wrapf(ErrUnclassifiedCountry, "%q", raw)
}

// Continent returns the continent for an ISO alpha-2 code.
func (c *Classifier) Continent(code string) (string, bool) {
	continent, ok := c.continents[strings.ToUpper(code)]
	return continent, ok
}

func (c *Classifier) fromCode(s string) (Classification, bool) {
	if len(s) != 2 {
		return Classification{}, false
	}
	continent, ok := c.continents[s]
	if !ok {
		return Classification{}, false
	}
	return Classification{CountryCode: s, Continent: continent}, true
}

// classify is only called with codes validated at load time.
func (c *Classifier) classify(code string) Classification {
	return Classification{CountryCode: code, Continent: c.continents[code]}
}

package match

// DefaultThreshold is the minimum similarity at which a fuzzy candidate is
// accepted. Callers own the threshold; it is configurable.
const DefaultThreshold = 0.85

// Scorer compares two keys and returns a similarity in [0, 1].
type Scorer func(a, b string) float64

// Match is the outcome of a best-match search.
type Match[V any] struct {
	Key   string
	Value V
	Score float64
}

// Accept reports whether score clears threshold (inclusive).
func Accept(score, threshold float64) bool {
	return score >= threshold
}

// Option configures an Index.
type Option func(*options)

type options struct {
	scorer Scorer
}

// WithScorer replaces the default Jaro-Winkler scorer.
func WithScorer(s Scorer) Option {
	return func(o *options) {
		o.scorer = s
	}
}

// Index is an insertion-ordered candidate set keyed by normalized name.
// Duplicate keys keep the first value added. Best-match ties resolve to the
// earliest key added, so results do not depend on map iteration order.
type Index[V any] struct {
	keys   []string
	values map[string]V
	scorer Scorer
}

// NewIndex creates an empty index.
func NewIndex[V any](opts ...Option) *Index[V] {
	o := options{scorer: JaroWinkler}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[V]{
		values: make(map[string]V),
		scorer: o.scorer,
	}
}

// Add inserts key with value v. It returns false when key is already present.
func (ix *Index[V]) Add(key string, v V) bool {
	if _, ok := ix.values[key]; ok {
		return false
	}
	ix.keys = append(ix.keys, key)
	ix.values[key] = v
	return true
}

// Lookup returns the value stored under key.
func (ix *Index[V]) Lookup(key string) (V, bool) {
	v, ok := ix.values[key]
	return v, ok
}

// Len returns the number of keys.
func (ix *Index[V]) Len() int {
	return len(ix.keys)
}

// Best scores query against every key and returns the highest-scoring one.
// ok is false only when the index is empty. The whole set is scanned.
func (ix *Index[V]) Best(query string) (Match[V], bool) {
	var best Match[V]
	found := false
	for _, k := range ix.keys {
		score := ix.scorer(query, k)
		if !found || score > best.Score {
			best = Match[V]{Key: k, Value: ix.values[k], Score: score}
			found = true
		}
	}
	return best, found
}

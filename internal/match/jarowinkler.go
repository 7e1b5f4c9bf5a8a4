// Package match scores normalized name keys against candidate sets.
package match

const (
	winklerPrefixMax = 4
	winklerScale     = 0.1
)

// Jaro returns the Jaro similarity of a and b in [0, 1], comparing runes.
func Jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	r1, r2 := []rune(a), []rune(b)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0
	}

	window := max(len1, len2)/2 - 1
	if window < 0 {
		window = 0
	}

	matched1 := make([]bool, len1)
	matched2 := make([]bool, len2)
	matches := 0
	for i := range len1 {
		lo := max(0, i-window)
		hi := min(len2, i+window+1)
		for j := lo; j < hi; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range len1 {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions)/2)/m) / 3
}

// JaroWinkler returns the Jaro-Winkler similarity of a and b: the Jaro score
// boosted by the length of the common prefix (up to 4 runes).
func JaroWinkler(a, b string) float64 {
	j := Jaro(a, b)

	r1, r2 := []rune(a), []rune(b)
	prefix := 0
	for i := 0; i < len(r1) && i < len(r2) && i < winklerPrefixMax; i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}

	return j + float64(prefix)*winklerScale*(1-j)
}

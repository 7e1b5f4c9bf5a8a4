// Package normalize maps free-text institution names to canonical comparison
// keys used for exact and fuzzy matching.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	leadingThe    = regexp.MustCompile(`(?i)^the\s+`)
	parenthetical = regexp.MustCompile(`\([^()]*\)`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// abbreviations folds common institutional words to a canonical short form.
// Applied to whole tokens after punctuation stripping.
var abbreviations = map[string]string{
	"university": "univ",
	"college":    "coll",
	"institute":  "inst",
	"technology": "tech",
}

// stopWords is the closed set of tokens dropped from keys: articles,
// conjunctions and prepositions across the common source languages, plus
// MEXT institutional qualifiers.
var stopWords = map[string]struct{}{
	// English
	"the": {}, "of": {}, "and": {}, "for": {}, "at": {}, "in": {}, "an": {}, "on": {},
	// Romance
	"de": {}, "del": {}, "della": {}, "di": {}, "da": {}, "do": {}, "dos": {}, "das": {},
	"la": {}, "le": {}, "les": {}, "los": {}, "las": {}, "el": {}, "des": {}, "du": {},
	"y": {}, "e": {}, "et": {},
	// Germanic
	"der": {}, "die": {}, "und": {}, "fur": {}, "für": {}, "van": {}, "voor": {}, "en": {}, "och": {},
	// MEXT qualifiers
	"national": {}, "public": {}, "private": {}, "prefectural": {}, "municipal": {},
	"corporation": {}, "incorporated": {}, "juridical": {}, "foundation": {},
}

// Name returns the canonical comparison key for an institution name. It is
// total and idempotent: Name(Name(s)) == Name(s).
//
// Steps, in order: width folding, trim, comma inversion, leading "The"
// removal, lowercasing, parenthetical removal, punctuation stripping, then
// per token stop-word removal and abbreviation folding, whitespace collapse.
func Name(name string) string {
	s := norm.NFKC.String(name)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = invertComma(s)
	s = leadingThe.ReplaceAllString(s, "")
	s = strings.ToLower(s)

	// Nested parentheses are peeled innermost-first.
	for parenthetical.MatchString(s) {
		s = parenthetical.ReplaceAllString(s, " ")
	}

	s = stripPunctuation(s)

	tokens := strings.Fields(s)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if short, ok := abbreviations[tok]; ok {
			tok = short
		}
		kept = append(kept, tok)
	}

	s = strings.Join(kept, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// invertComma rewrites "B, A" as "A B" when the name holds exactly one comma
// splitting it into two non-empty parts, e.g. "Tokyo, University of".
func invertComma(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}
	before, after, _ := strings.Cut(s, ",")
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	if before == "" || after == "" {
		return s
	}
	return after + " " + before
}

// stripPunctuation replaces every rune that is not a letter, digit, mark or
// space with a single space.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsMark(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Package catalog maintains the per-organization brand catalog: name
// normalization, fuzzy similarity, duplicate detection, and the batch merge
// routine that reconciles detections against stored entries.
package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes to strip during name
// normalization, so "Acme Inc." and "Acme" reconcile to the same entry.
var legalSuffixes = []string{
	" llc", " l.l.c.", " l.l.c",
	" inc", " inc.", " incorporated",
	" corp", " corp.", " corporation",
	" ltd", " ltd.", " limited",
	" co", " co.",
	" plc", " p.l.c.",
	" gmbh", " ag", " sa", " bv",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// foldDiacritics strips combining marks after NFD decomposition, so "Café"
// normalizes the same as "Cafe".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize standardizes a brand name for matching by:
//  1. Trimming whitespace and lowercasing
//  2. Folding diacritics
//  3. Removing common legal suffixes (LLC, Inc, Corp, etc.)
//  4. Stripping punctuation (commas, periods, quotes; "&" becomes "and")
//  5. Collapsing multiple spaces into single spaces
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)

	if folded, _, err := transform.String(foldDiacritics, name); err == nil {
		name = folded
	}

	// Strip legal suffixes (at most one; they're all distinct).
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	// Remove common punctuation.
	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"!", "",
		"?", "",
		"&", "and",
		"-", " ",
		"_", " ",
	).Replace(name)

	// Collapse multiple spaces.
	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return name
}

// NormalizeAll normalizes a list of names, dropping entries that normalize
// to the empty string.
func NormalizeAll(names []string) []string {
	var out []string
	for _, n := range names {
		if norm := Normalize(n); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

// Package extract turns raw LLM answer text into candidate brand-name
// strings. The primary path parses a {"brands": [...]} JSON object embedded
// in the answer by prompting convention; when that fails it falls back to
// capitalized-token pattern matching over the free text.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseResult reports how candidate names were obtained. A non-empty
// FallbackReason means the embedded-JSON path failed and the names came from
// pattern extraction — an explicit, observable branch rather than a swallowed
// parse error.
type ParseResult struct {
	Names          []string
	FallbackReason string
}

// FromFallback reports whether pattern extraction produced the names.
func (r ParseResult) FromFallback() bool {
	return r.FallbackReason != ""
}

type brandsPayload struct {
	Brands []string `json:"brands"`
}

var (
	// A JSON object carrying a "brands" array, possibly surrounded by prose
	// or markdown fences.
	brandsObjectRe = regexp.MustCompile(`\{[^{}]*"brands"\s*:\s*\[[^\]]*\][^{}]*\}`)

	// Two consecutive capitalized words ("Sales Force", "Hub Spot Marketing"
	// collapses to pairs) and single capitalized tokens of length >= 3.
	doubleCapRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9&]+ [A-Z][A-Za-z0-9&]+\b`)
	singleCapRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{2,}\b`)
)

// capitalizedStopwords are common English words that appear capitalized at
// sentence starts and would otherwise flood the candidate list. Generic
// business nouns are handled later by the classifier's blocklist; this list
// only covers words the classifier would not see as "generic terms".
var capitalizedStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"Most": true, "Many": true, "Some": true, "Here": true, "There": true,
	"When": true, "Where": true, "While": true, "With": true, "What": true,
	"Which": true, "Here's": true, "However": true, "Although": true,
	"Additionally": true, "Also": true, "And": true, "But": true, "For": true,
	"Overall": true, "Finally": true, "First": true, "Second": true,
	"Third": true, "Both": true, "Each": true, "Their": true, "They": true,
	"You": true, "Your": true, "Its": true, "All": true, "Other": true,
	"Another": true, "Consider": true, "Based": true, "Key": true,
	"Points": true, "Pros": true, "Cons": true, "Yes": true, "Not": true,
	"Note": true, "Remember": true, "Depending": true, "Ultimately": true,
	"Choosing": true, "If": true, "In": true, "It": true, "Before": true,
	"After": true,
}

// Extract produces an insertion-ordered, deduplicated candidate name list
// from one answer. Empty answer text yields an empty list, not an error.
func Extract(answerText string) ParseResult {
	text := strings.TrimSpace(answerText)
	if text == "" {
		return ParseResult{}
	}

	names, reason := parseEmbedded(text)
	if reason == "" {
		return ParseResult{Names: names}
	}

	return ParseResult{
		Names:          extractPatterns(text),
		FallbackReason: reason,
	}
}

// parseEmbedded looks for the {"brands": [...]} convention anywhere in the
// answer. Returns a non-empty reason when the convention is absent or
// malformed.
func parseEmbedded(text string) ([]string, string) {
	match := brandsObjectRe.FindString(stripFences(text))
	if match == "" {
		return nil, "no embedded brands object"
	}

	var payload brandsPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return nil, "malformed brands object: " + err.Error()
	}

	var names []string
	seen := make(map[string]bool)
	for _, b := range payload.Brands {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		names = append(names, b)
	}
	return names, ""
}

// extractPatterns matches capitalized-token patterns over the text. Pairs of
// capitalized words take priority over single tokens so "Sales Force" is one
// candidate, with its constituent words suppressed.
func extractPatterns(text string) []string {
	var names []string
	seen := make(map[string]bool)
	covered := make(map[string]bool)

	for _, m := range doubleCapRe.FindAllString(text, -1) {
		first, second, _ := strings.Cut(m, " ")
		if capitalizedStopwords[first] || capitalizedStopwords[second] {
			continue
		}
		if !seen[m] {
			seen[m] = true
			names = append(names, m)
		}
		covered[first] = true
		covered[second] = true
	}

	for _, m := range singleCapRe.FindAllString(text, -1) {
		if capitalizedStopwords[m] || covered[m] || seen[m] {
			continue
		}
		seen[m] = true
		names = append(names, m)
	}

	return names
}

// stripFences removes markdown code fences so a fenced JSON block still
// matches the brands-object pattern.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	return strings.NewReplacer("```json", " ", "```", " ").Replace(text)
}

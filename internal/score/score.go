// Package score computes the deterministic 0-10 visibility score for a
// single provider answer from the classified brand mentions.
package score

import (
	"math"
	"strings"

	"github.com/brandlens/visibility/internal/catalog"
)

const (
	baseScore          = 5.0
	maxPositionBonus   = 3.0
	positionBonusStep  = 10 // tokens per -1 bonus decrement
	competitorPenalty  = 0.5
	maxCompetitorPenalty = 3.0
)

// Result is the scored outcome of one answer. Score is always in [0, 10];
// an absent brand scores exactly 0 and a present brand never scores below 1.
type Result struct {
	BrandPresent    bool `json:"brand_present"`
	BrandPosition   *int `json:"brand_position,omitempty"`
	CompetitorCount int  `json:"competitor_count"`
	Score           int  `json:"score"`
}

// Score computes the visibility result for an answer. Position is the
// 0-based whitespace-token index of the earliest org-brand mention in the
// answer text; multi-word brands match at the index of their first token.
func Score(orgBrands, competitors []string, answerText string) Result {
	result := Result{
		BrandPresent:    len(orgBrands) > 0,
		CompetitorCount: len(competitors),
	}
	if !result.BrandPresent {
		return result
	}

	if pos, ok := earliestMention(orgBrands, answerText); ok {
		result.BrandPosition = &pos
	}

	score := baseScore + positionBonus(result.BrandPosition)
	score -= math.Min(maxCompetitorPenalty, competitorPenalty*float64(result.CompetitorCount))

	// Present brands never score zero, whatever the penalties.
	if score < 1 {
		score = 1
	}

	result.Score = clamp(int(math.Round(score)), 0, 10)
	return result
}

// positionBonus grants up to +3 for early mentions, dropping one point per
// ten tokens of position. A nil position (brand classified as present but
// not literally found in the text) earns no bonus.
func positionBonus(position *int) float64 {
	if position == nil {
		return 0
	}
	bonus := maxPositionBonus - float64(*position/positionBonusStep)
	return math.Max(0, bonus)
}

// earliestMention finds the lowest token index at which any of the given
// brand names occurs in the text. Matching normalizes both sides, so
// "HubSpot" is found in "I'd pick hubspot." regardless of case and
// punctuation.
func earliestMention(brands []string, text string) (int, bool) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0, false
	}

	normTokens := make([]string, len(tokens))
	for i, tok := range tokens {
		normTokens[i] = catalog.Normalize(tok)
	}

	best := -1
	for _, brand := range brands {
		brandTokens := strings.Fields(catalog.Normalize(brand))
		if len(brandTokens) == 0 {
			continue
		}
		if pos, ok := findTokenRun(normTokens, brandTokens); ok && (best == -1 || pos < best) {
			best = pos
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// findTokenRun locates the first occurrence of needle as a consecutive run
// within haystack.
func findTokenRun(haystack, needle []string) (int, bool) {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		matched := true
		for j, want := range needle {
			if haystack[i+j] != want {
				matched = false
				break
			}
		}
		if matched {
			return i, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package classify splits extracted candidate names into "organization
// brand", "competitor", or discarded noise using an ordered rule engine over
// the stored catalog, manual overlay overrides, and structural heuristics.
package classify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

// Rule identifies which predicate accepted a candidate. Confidence is
// derived from the rule: exact catalog matches outrank pattern matches.
type Rule string

const (
	RuleOwnBrand     Rule = "own_brand"
	RuleCatalogMatch Rule = "catalog_match"
	RuleOverride     Rule = "override"
	RuleKnownBrand   Rule = "known_brand"
	RulePattern      Rule = "pattern"
)

// ruleConfidence maps each accepting rule to its implicit confidence.
var ruleConfidence = map[Rule]float64{
	RuleOwnBrand:     1.0,
	RuleCatalogMatch: 1.0,
	RuleOverride:     1.0,
	RuleKnownBrand:   0.9,
	RulePattern:      0.6,
}

// Match is one accepted classification with its provenance.
type Match struct {
	Name       string  `json:"name"`
	Rule       Rule    `json:"rule"`
	Confidence float64 `json:"confidence"`
}

// Result partitions accepted candidates. Candidates matching no accept rule
// are silently discarded — a deliberate precision-over-recall policy.
type Result struct {
	OrgBrands   []Match `json:"org_brands"`
	Competitors []Match `json:"competitors"`
}

// OrgBrandNames returns the accepted org-brand names in order.
func (r Result) OrgBrandNames() []string { return matchNames(r.OrgBrands) }

// CompetitorNames returns the accepted competitor names in order.
func (r Result) CompetitorNames() []string { return matchNames(r.Competitors) }

func matchNames(ms []Match) []string {
	var names []string
	for _, m := range ms {
		names = append(names, m.Name)
	}
	return names
}

// Classifier applies the rule engine for one organization. It is pure: the
// catalog snapshot and overlay are supplied by the caller, and identical
// inputs always produce identical results.
type Classifier struct {
	rules Ruleset
}

// New creates a Classifier with the given ruleset.
func New(rules Ruleset) *Classifier {
	return &Classifier{rules: rules}
}

// Classify partitions candidates using the decision order, first match wins:
//
//  1. normalize the candidate
//  2. own-brand match (catalog org rows, overlay variants, org record) → org brand
//  3. exclusion overlay → discard
//  4. competitor override overlay → competitor
//  5. generic-term blocklist → discard
//  6. catalog competitor match, known-brand allowlist, or structural
//     pattern → competitor
//  7. otherwise → discard
func (c *Classifier) Classify(candidates []string, entries []model.CatalogEntry, overlay model.OrgOverlay, org model.Organization) Result {
	ownIndex := buildOwnBrandIndex(entries, overlay, org)
	competitorIndex := buildCompetitorIndex(entries)
	exclusions := toSet(catalog.NormalizeAll(overlay.CompetitorExclusions))
	overrides := toSet(catalog.NormalizeAll(overlay.CompetitorOverrides))

	var result Result
	seen := make(map[string]bool)

	for _, raw := range candidates {
		normalized := catalog.Normalize(raw)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		if ownIndex.matches(normalized) {
			result.OrgBrands = append(result.OrgBrands, accepted(raw, RuleOwnBrand))
			continue
		}

		// Exclusions beat every competitor signal, including overrides.
		if exclusions[normalized] {
			continue
		}

		// Operator force-includes beat the generic blocklist.
		if overrides[normalized] {
			result.Competitors = append(result.Competitors, accepted(raw, RuleOverride))
			continue
		}

		if c.rules.isGenericTerm(normalized) {
			continue
		}

		if competitorIndex[normalized] {
			result.Competitors = append(result.Competitors, accepted(raw, RuleCatalogMatch))
			continue
		}

		if c.rules.isKnownBrand(normalized) {
			result.Competitors = append(result.Competitors, accepted(raw, RuleKnownBrand))
			continue
		}

		if c.rules.matchesStructuralPattern(raw) {
			result.Competitors = append(result.Competitors, accepted(raw, RulePattern))
			continue
		}

		// Conservative default: ambiguous candidates are dropped rather than
		// risking false-positive competitors.
		zap.L().Debug("classify: discarded ambiguous candidate", zap.String("candidate", raw))
	}

	return result
}

// FilterCompetitors drops competitor matches below the confidence floor.
func FilterCompetitors(matches []Match, minConfidence float64) []Match {
	var kept []Match
	for _, m := range matches {
		if m.Confidence >= minConfidence {
			kept = append(kept, m)
		}
	}
	return kept
}

func accepted(raw string, rule Rule) Match {
	return Match{
		Name:       strings.TrimSpace(raw),
		Rule:       rule,
		Confidence: ruleConfidence[rule],
	}
}

// ownBrandIndex holds the organization's normalized self-names. Matching
// includes the containment relation so "HubSpot CRM" still counts as the
// org brand "HubSpot".
type ownBrandIndex struct {
	names map[string]bool
}

func (idx ownBrandIndex) matches(normalized string) bool {
	if idx.names[normalized] {
		return true
	}
	// Containment in either direction, word-boundary aware, minimum length 3
	// to keep short fragments from matching everything.
	for name := range idx.names {
		if len(name) < 3 || len(normalized) < 3 {
			continue
		}
		if containsWord(normalized, name) || containsWord(name, normalized) {
			return true
		}
	}
	return false
}

// containsWord reports whether needle occurs in haystack at word boundaries,
// or as a prefix/suffix of a single compound token ("hubspot" in
// "hubspotcrm").
func containsWord(haystack, needle string) bool {
	if haystack == needle {
		return true
	}
	if strings.Contains(" "+haystack+" ", " "+needle+" ") {
		return true
	}
	if !strings.Contains(haystack, " ") && (strings.HasPrefix(haystack, needle) || strings.HasSuffix(haystack, needle)) {
		return true
	}
	return false
}

// buildOwnBrandIndex collects the org's canonical names and variants from
// catalog rows marked is_org_brand, overlay brand variants, and — when no
// such catalog row exists — the organization record itself.
func buildOwnBrandIndex(entries []model.CatalogEntry, overlay model.OrgOverlay, org model.Organization) ownBrandIndex {
	idx := ownBrandIndex{names: make(map[string]bool)}
	seeded := false

	for _, e := range entries {
		if !e.IsOrgBrand {
			continue
		}
		seeded = true
		if n := catalog.Normalize(e.Name); n != "" {
			idx.names[n] = true
		}
		for _, v := range catalog.NormalizeAll(e.Variants) {
			idx.names[v] = true
		}
	}

	for _, v := range catalog.NormalizeAll(overlay.BrandVariants) {
		idx.names[v] = true
	}

	// Fallback seeding from the organization record: a tenant with no
	// catalog history must still never see itself as a competitor.
	if !seeded {
		for _, v := range DeriveOrgVariants(org) {
			idx.names[v] = true
		}
	}

	return idx
}

// buildCompetitorIndex maps normalized competitor names and variants from
// existing catalog rows.
func buildCompetitorIndex(entries []model.CatalogEntry) map[string]bool {
	index := make(map[string]bool)
	for _, e := range entries {
		if e.IsOrgBrand {
			continue
		}
		if n := catalog.Normalize(e.Name); n != "" {
			index[n] = true
		}
		for _, v := range catalog.NormalizeAll(e.Variants) {
			index[v] = true
		}
	}
	return index
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

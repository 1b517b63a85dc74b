package classify

import (
	"strings"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

// DeriveOrgVariants generates the organization's own-name variants from its
// record alone: the name, the domain, the domain's root label, and
// spaced/unspaced compound splits. Used as the seed when no catalog row is
// marked is_org_brand yet, so an organization is recognized from its first
// run onward. All variants are returned normalized.
func DeriveOrgVariants(org model.Organization) []string {
	seen := make(map[string]bool)
	var variants []string
	add := func(v string) {
		norm := catalog.Normalize(v)
		if norm == "" || seen[norm] {
			return
		}
		seen[norm] = true
		variants = append(variants, norm)
	}

	add(org.Name)
	add(strings.ReplaceAll(org.Name, " ", ""))
	add(splitCompound(org.Name))

	domain := strings.TrimPrefix(strings.TrimPrefix(org.Domain, "https://"), "http://")
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, "/")
	if domain != "" {
		add(domain)
		if root, _, found := strings.Cut(domain, "."); found && root != "" {
			add(root)
			add(splitCompound(root))
		}
	}

	return variants
}

// splitCompound inserts spaces at interior case transitions so "SunLife"
// yields "Sun Life". Returns "" when the input has no transition.
func splitCompound(s string) string {
	runes := []rune(s)
	var b strings.Builder
	split := false
	for i, r := range runes {
		if i > 0 && isLower(runes[i-1]) && isUpper(r) {
			b.WriteRune(' ')
			split = true
		}
		b.WriteRune(r)
	}
	if !split {
		return ""
	}
	return b.String()
}

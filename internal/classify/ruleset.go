package classify

import (
	"strings"

	"github.com/brandlens/visibility/internal/catalog"
)

// Ruleset holds the swappable data the rule engine consults: blocklists,
// allowlists, and structural pattern tables. Kept as data rather than inlined
// literals so deployments can extend them through configuration without
// touching classification logic.
type Ruleset struct {
	genericTerms map[string]bool // normalized
	knownBrands  map[string]bool // normalized
	domainTLDs   []string
	brandSuffix  []string
}

// defaultGenericTerms are generic business nouns and stop words that are
// never brands regardless of capitalization or catalog contents.
var defaultGenericTerms = []string{
	"platform", "business", "solution", "solutions", "software", "service",
	"services", "company", "companies", "product", "products", "tool",
	"tools", "system", "systems", "marketing", "sales", "support",
	"management", "customer", "customers", "enterprise", "startup", "agency",
	"website", "internet", "online", "digital", "data", "cloud", "email",
	"mobile", "social", "media", "content", "search", "analytics", "report",
	"team", "teams", "pricing", "price", "free", "plan", "plans", "option",
	"options", "feature", "features", "integration", "integrations", "user",
	"users", "review", "reviews", "alternative", "alternatives", "best",
	"top", "guide", "crm", "seo", "api", "app", "apps", "ai",
}

// defaultKnownBrands is a seed allowlist of widely-known software vendors.
// Catalog entries extend this at classification time; the static list only
// covers brands likely to appear before any catalog history exists.
var defaultKnownBrands = []string{
	"salesforce", "hubspot", "zoho", "pipedrive", "freshworks", "freshsales",
	"zendesk", "intercom", "drift", "marketo", "mailchimp", "klaviyo",
	"hootsuite", "buffer", "semrush", "ahrefs", "moz", "monday", "asana",
	"trello", "notion", "airtable", "slack", "shopify", "wix", "squarespace",
	"webflow", "wordpress", "stripe", "square", "quickbooks", "xero",
	"netsuite", "workday", "gusto", "rippling", "docusign", "dropbox",
	"atlassian", "jira", "confluence", "gitlab", "github", "figma", "canva",
	"adobe", "microsoft", "google", "amazon", "oracle", "sap", "ibm",
	"twilio", "segment", "amplitude", "mixpanel", "braze", "iterable",
	"klarna", "brevo", "activecampaign", "constant contact", "pardot",
	"eloqua", "sugarcrm", "insightly", "keap", "close", "copper",
	"highlevel", "gohighlevel", "clickup", "basecamp", "calendly",
}

var defaultDomainTLDs = []string{".com", ".io", ".ai", ".co", ".net", ".org", ".app", ".dev"}

// Business-software compound suffixes ("...Hub", "...Force", "...CRM").
var defaultBrandSuffixes = []string{"hub", "force", "crm", "desk", "spot", "works", "stack", "flow", "kit"}

// DefaultRuleset returns the built-in blocklist/allowlist tables.
func DefaultRuleset() Ruleset {
	return NewRuleset(nil, nil)
}

// NewRuleset builds a Ruleset from the defaults plus extra generic terms and
// known brands (typically from configuration). Extra entries are normalized
// before insertion.
func NewRuleset(extraGeneric, extraKnown []string) Ruleset {
	rs := Ruleset{
		genericTerms: make(map[string]bool, len(defaultGenericTerms)+len(extraGeneric)),
		knownBrands:  make(map[string]bool, len(defaultKnownBrands)+len(extraKnown)),
		domainTLDs:   defaultDomainTLDs,
		brandSuffix:  defaultBrandSuffixes,
	}
	for _, t := range defaultGenericTerms {
		rs.genericTerms[t] = true
	}
	for _, t := range catalog.NormalizeAll(extraGeneric) {
		rs.genericTerms[t] = true
	}
	for _, b := range defaultKnownBrands {
		rs.knownBrands[b] = true
	}
	for _, b := range catalog.NormalizeAll(extraKnown) {
		rs.knownBrands[b] = true
	}
	return rs
}

// isGenericTerm reports whether every word of the normalized candidate is a
// blocklisted generic term ("Marketing", "Email Marketing").
func (rs Ruleset) isGenericTerm(normalized string) bool {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if !rs.genericTerms[w] {
			return false
		}
	}
	return true
}

// isKnownBrand reports whether the normalized candidate is on the allowlist,
// directly or with a domain TLD stripped ("salesforcecom").
func (rs Ruleset) isKnownBrand(normalized string) bool {
	if rs.knownBrands[normalized] {
		return true
	}

	// Domain form of a known brand ("salesforcecom").
	for _, tld := range rs.domainTLDs {
		bare := strings.ReplaceAll(tld, ".", "")
		if trimmed, ok := strings.CutSuffix(normalized, bare); ok && rs.knownBrands[trimmed] {
			return true
		}
	}

	// Known brand followed by generic qualifiers ("zoho crm",
	// "salesforce marketing cloud").
	words := strings.Fields(normalized)
	for n := len(words) - 1; n >= 1; n-- {
		if !rs.genericTerms[words[n]] {
			break
		}
		if rs.knownBrands[strings.Join(words[:n], " ")] {
			return true
		}
	}

	return false
}

// matchesStructuralPattern reports whether the raw candidate looks like a
// product brand: CamelCase token, domain-like suffix, or a recognized
// business-software compound suffix.
func (rs Ruleset) matchesStructuralPattern(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, tld := range rs.domainTLDs {
		if strings.HasSuffix(lower, tld) && len(lower) > len(tld) {
			return true
		}
	}

	if isCamelCase(trimmed) {
		return true
	}

	// Compound suffix on a single token of reasonable length ("SalesHub").
	if !strings.Contains(trimmed, " ") && len(lower) >= 5 {
		for _, suf := range rs.brandSuffix {
			if strings.HasSuffix(lower, suf) && len(lower) > len(suf)+2 {
				return true
			}
		}
	}

	return false
}

// isCamelCase detects an interior lowercase-to-uppercase transition in a
// single token ("HubSpot", "SugarCRM"), which plain English words never have.
func isCamelCase(s string) bool {
	if strings.Contains(s, " ") {
		return false
	}
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if isLower(runes[i-1]) && isUpper(runes[i]) {
			return true
		}
	}
	return false
}

func isLower(r rune) bool { return r >= 'a' && r <= 'z' }
func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

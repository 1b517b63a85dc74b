package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/model"
)

// Policy holds the merger's tunable thresholds.
type Policy struct {
	Lookback        time.Duration
	MinMentions     int
	ScoreGate       float64
	Retention       time.Duration
	DedupeThreshold float64
}

// DefaultPolicy mirrors the production defaults: one-week window, three
// mentions or an average score of 7 to enter the catalog, two-week
// retention for rows that stop appearing.
func DefaultPolicy() Policy {
	return Policy{
		Lookback:        7 * 24 * time.Hour,
		MinMentions:     3,
		ScoreGate:       7.0,
		Retention:       14 * 24 * time.Hour,
		DedupeThreshold: 0.7,
	}
}

// ChangeSet is the storage effect of one merge pass for one organization.
// Stores apply it atomically: either every upsert and delete lands, or none.
type ChangeSet struct {
	Upserts   []model.CatalogEntry
	DeleteIDs []uuid.UUID
}

// Empty reports whether applying the set would be a no-op.
func (c ChangeSet) Empty() bool { return len(c.Upserts) == 0 && len(c.DeleteIDs) == 0 }

// Storage is the narrow persistence surface the merger needs.
type Storage interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (model.Organization, error)
	GetOverlay(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error)
	ListExecutionsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.ProviderExecution, error)
	ListCatalog(ctx context.Context, orgID uuid.UUID) ([]model.CatalogEntry, error)
	ApplyCatalogChanges(ctx context.Context, orgID uuid.UUID, changes ChangeSet) error
}

// Merger reconciles recent detections against the stored catalog for one
// organization at a time. The read-aggregate-decide phase completes fully
// before any write, and the write is a single atomic ChangeSet.
type Merger struct {
	storage Storage
	policy  Policy
	now     func() time.Time
}

// NewMerger creates a Merger using the given storage and policy.
func NewMerger(storage Storage, policy Policy) *Merger {
	return &Merger{storage: storage, policy: policy, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (m *Merger) WithNow(now func() time.Time) *Merger {
	m.now = now
	return m
}

// candidate accumulates one competitor name's window statistics.
type candidate struct {
	display   string
	mentions  int
	scoreSum  float64
	scoreObs  int
}

func (c candidate) averageScore() float64 {
	if c.scoreObs == 0 {
		return 0
	}
	return c.scoreSum / float64(c.scoreObs)
}

// Run executes one merge pass for the organization and applies the
// resulting changes. Returns the applied ChangeSet for logging and dry
// inspection by callers.
func (m *Merger) Run(ctx context.Context, orgID uuid.UUID) (ChangeSet, error) {
	org, err := m.storage.GetOrganization(ctx, orgID)
	if err != nil {
		return ChangeSet{}, eris.Wrap(err, "merger: load organization")
	}
	overlay, err := m.storage.GetOverlay(ctx, orgID)
	if err != nil {
		return ChangeSet{}, eris.Wrap(err, "merger: load overlay")
	}
	entries, err := m.storage.ListCatalog(ctx, orgID)
	if err != nil {
		return ChangeSet{}, eris.Wrap(err, "merger: load catalog")
	}

	now := m.now()
	executions, err := m.storage.ListExecutionsSince(ctx, orgID, now.Add(-m.policy.Lookback))
	if err != nil {
		return ChangeSet{}, eris.Wrap(err, "merger: load executions")
	}

	changes := m.plan(org, overlay, entries, executions, now)
	if changes.Empty() {
		zap.L().Debug("merger: no changes", zap.String("org_id", orgID.String()))
		return changes, nil
	}

	if err := m.storage.ApplyCatalogChanges(ctx, orgID, changes); err != nil {
		return ChangeSet{}, eris.Wrap(err, "merger: apply changes")
	}

	zap.L().Info("merger: catalog updated",
		zap.String("org_id", orgID.String()),
		zap.Int("upserts", len(changes.Upserts)),
		zap.Int("deletes", len(changes.DeleteIDs)))
	return changes, nil
}

// plan computes the full ChangeSet for one pass. Pure: no storage access.
func (m *Merger) plan(org model.Organization, overlay model.OrgOverlay, entries []model.CatalogEntry, executions []model.ProviderExecution, now time.Time) ChangeSet {
	candidates := aggregateWindow(executions)
	ownNames := ownBrandNames(org, overlay, entries)
	exclusions := toNameSet(overlay.CompetitorExclusions)

	existingByNorm := make(map[string]model.CatalogEntry)
	for _, e := range entries {
		if e.IsOrgBrand {
			continue
		}
		if n := Normalize(e.Name); n != "" {
			existingByNorm[n] = e
		}
		for _, v := range NormalizeAll(e.Variants) {
			if _, taken := existingByNorm[v]; !taken {
				existingByNorm[v] = e
			}
		}
	}

	var changes ChangeSet
	deleted := make(map[uuid.UUID]bool)
	confirmed := make(map[uuid.UUID]bool)

	// Operator exclusions retroactively remove prior detections.
	for norm := range exclusions {
		if existing, ok := existingByNorm[norm]; ok && !deleted[existing.ID] {
			deleted[existing.ID] = true
			changes.DeleteIDs = append(changes.DeleteIDs, existing.ID)
		}
	}

	for _, norm := range sortedKeys(candidates) {
		cand := candidates[norm]
		if matchesOwnBrand(norm, ownNames) {
			continue
		}
		if exclusions[norm] {
			continue
		}
		avg := cand.averageScore()
		if cand.mentions < m.policy.MinMentions && avg < m.policy.ScoreGate {
			continue
		}

		if existing, ok := existingByNorm[norm]; ok && !deleted[existing.ID] {
			confirmed[existing.ID] = true
			existing.LastSeenAt = now
			if cand.mentions > existing.TotalAppearances {
				existing.TotalAppearances = cand.mentions
			}
			existing.AverageScore = avg
			changes.Upserts = append(changes.Upserts, existing)
			continue
		}

		changes.Upserts = append(changes.Upserts, model.CatalogEntry{
			ID:               uuid.New(),
			OrgID:            org.ID,
			Name:             cand.display,
			FirstDetectedAt:  now,
			LastSeenAt:       now,
			TotalAppearances: cand.mentions,
			AverageScore:     avg,
		})
	}

	// Staleness sweep over rows this pass did not re-confirm.
	cutoff := now.Add(-m.policy.Retention)
	for _, e := range entries {
		if e.IsOrgBrand || confirmed[e.ID] || deleted[e.ID] {
			continue
		}
		if e.LastSeenAt.Before(cutoff) {
			deleted[e.ID] = true
			changes.DeleteIDs = append(changes.DeleteIDs, e.ID)
		}
	}

	return changes
}

// aggregateWindow counts mentions and collects observed scores per
// normalized competitor name across the window's executions.
func aggregateWindow(executions []model.ProviderExecution) map[string]*candidate {
	candidates := make(map[string]*candidate)
	for _, exec := range executions {
		if exec.Status != model.StatusSuccess {
			continue
		}
		for _, name := range exec.Competitors {
			norm := Normalize(name)
			if norm == "" {
				continue
			}
			cand, ok := candidates[norm]
			if !ok {
				cand = &candidate{display: strings.TrimSpace(name)}
				candidates[norm] = cand
			}
			cand.mentions++
			if exec.Score != nil {
				cand.scoreSum += float64(*exec.Score)
				cand.scoreObs++
			}
		}
	}
	return candidates
}

// ownBrandNames resolves every normalized name the organization is known
// by: the org record, overlay variants, and catalog rows flagged as the
// org's own brand.
func ownBrandNames(org model.Organization, overlay model.OrgOverlay, entries []model.CatalogEntry) map[string]bool {
	names := toNameSet([]string{org.Name, strings.ReplaceAll(org.Name, " ", "")})

	domain := strings.TrimPrefix(strings.TrimPrefix(org.Domain, "https://"), "http://")
	domain = strings.TrimPrefix(domain, "www.")
	if domain != "" {
		if n := Normalize(domain); n != "" {
			names[n] = true
		}
		if root, _, found := strings.Cut(domain, "."); found {
			if n := Normalize(root); n != "" {
				names[n] = true
			}
		}
	}

	for _, v := range NormalizeAll(overlay.BrandVariants) {
		names[v] = true
	}
	for _, e := range entries {
		if !e.IsOrgBrand {
			continue
		}
		if n := Normalize(e.Name); n != "" {
			names[n] = true
		}
		for _, v := range NormalizeAll(e.Variants) {
			names[v] = true
		}
	}
	return names
}

// matchesOwnBrand applies the same containment relation the classifier
// uses, so "hubspot crm" is still recognized as the org "hubspot".
func matchesOwnBrand(norm string, ownNames map[string]bool) bool {
	if ownNames[norm] {
		return true
	}
	for own := range ownNames {
		if len(own) < 3 || len(norm) < 3 {
			continue
		}
		if strings.Contains(" "+norm+" ", " "+own+" ") {
			return true
		}
		if !strings.Contains(norm, " ") && (strings.HasPrefix(norm, own) || strings.HasSuffix(norm, own)) {
			return true
		}
	}
	return false
}

func toNameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range NormalizeAll(names) {
		set[n] = true
	}
	return set
}

func sortedKeys(m map[string]*candidate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package catalog

import (
	"sort"

	"github.com/google/uuid"

	"github.com/brandlens/visibility/internal/model"
)

// DuplicateGroup is a set of catalog entries whose names are similar enough
// to likely describe the same company. Entries keep their input order except
// that the suggested primary (highest total_appearances) is first.
type DuplicateGroup struct {
	Entries []model.CatalogEntry `json:"entries"`
}

// Primary returns the suggested surviving entry for the group.
func (g DuplicateGroup) Primary() model.CatalogEntry { return g.Entries[0] }

// Absorbed returns the entries that would be deleted by a merge.
func (g DuplicateGroup) Absorbed() []model.CatalogEntry { return g.Entries[1:] }

// FindDuplicateGroups groups entries whose normalized names have pairwise
// similarity above threshold. Grouping is transitive: if A~B and B~C, all
// three land in one group. Organization-brand rows never participate;
// merging those is an operator decision made on the org record, not here.
func FindDuplicateGroups(entries []model.CatalogEntry, threshold float64) []DuplicateGroup {
	var competitors []model.CatalogEntry
	for _, e := range entries {
		if !e.IsOrgBrand {
			competitors = append(competitors, e)
		}
	}
	if len(competitors) < 2 {
		return nil
	}

	// Union-find over entry indices.
	parent := make([]int, len(competitors))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) { parent[find(a)] = find(b) }

	for i := 0; i < len(competitors); i++ {
		for j := i + 1; j < len(competitors); j++ {
			if Similarity(competitors[i].Name, competitors[j].Name) > threshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]model.CatalogEntry)
	rootOrder := make([]int, 0)
	for i, e := range competitors {
		root := find(i)
		if _, ok := byRoot[root]; !ok {
			rootOrder = append(rootOrder, root)
		}
		byRoot[root] = append(byRoot[root], e)
	}

	var groups []DuplicateGroup
	for _, root := range rootOrder {
		members := byRoot[root]
		if len(members) < 2 {
			continue
		}
		// Highest appearance count leads; ties break on earliest detection
		// so merge output is deterministic.
		sort.SliceStable(members, func(a, b int) bool {
			if members[a].TotalAppearances != members[b].TotalAppearances {
				return members[a].TotalAppearances > members[b].TotalAppearances
			}
			return members[a].FirstDetectedAt.Before(members[b].FirstDetectedAt)
		})
		groups = append(groups, DuplicateGroup{Entries: members})
	}
	return groups
}

// MergePlan describes the storage effect of collapsing a duplicate group:
// one updated survivor and the IDs of the absorbed rows to delete.
type MergePlan struct {
	Survivor  model.CatalogEntry `json:"survivor"`
	DeleteIDs []uuid.UUID        `json:"delete_ids"`
}

// PlanMerge computes the merged survivor for a duplicate group:
//   - the primary's identity (ID, name, org flag) survives
//   - variant lists combine, deduplicated by normalized form, and never
//     include the survivor's own name
//   - total_appearances is the group sum
//   - average_score is the appearance-weighted mean
//   - first_detected_at is the earliest, last_seen_at the latest
func PlanMerge(group DuplicateGroup) MergePlan {
	survivor := group.Primary()

	seen := map[string]bool{Normalize(survivor.Name): true}
	var variants []string
	addVariant := func(v string) {
		norm := Normalize(v)
		if norm == "" || seen[norm] {
			return
		}
		seen[norm] = true
		variants = append(variants, v)
	}
	for _, v := range survivor.Variants {
		addVariant(v)
	}

	totalAppearances := survivor.TotalAppearances
	weightedScore := survivor.AverageScore * float64(survivor.TotalAppearances)

	var deleteIDs []uuid.UUID
	for _, absorbed := range group.Absorbed() {
		addVariant(absorbed.Name)
		for _, v := range absorbed.Variants {
			addVariant(v)
		}
		totalAppearances += absorbed.TotalAppearances
		weightedScore += absorbed.AverageScore * float64(absorbed.TotalAppearances)
		if absorbed.FirstDetectedAt.Before(survivor.FirstDetectedAt) {
			survivor.FirstDetectedAt = absorbed.FirstDetectedAt
		}
		if absorbed.LastSeenAt.After(survivor.LastSeenAt) {
			survivor.LastSeenAt = absorbed.LastSeenAt
		}
		deleteIDs = append(deleteIDs, absorbed.ID)
	}

	survivor.Variants = variants
	survivor.TotalAppearances = totalAppearances
	if totalAppearances > 0 {
		survivor.AverageScore = weightedScore / float64(totalAppearances)
	}

	return MergePlan{Survivor: survivor, DeleteIDs: deleteIDs}
}

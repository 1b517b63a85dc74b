// Package model defines the shared domain types for the brand visibility
// pipeline: tracked prompts, provider executions, the per-organization brand
// catalog, and manual overlay overrides.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant whose brand visibility is being tracked.
// Read-only from the pipeline's perspective; owned by the hosting layer.
type Organization struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Domain string    `json:"domain"`
}

// TrackedPrompt is a natural-language query monitored for brand visibility.
// Prompts are soft-disabled, never hard-deleted, while execution history
// references them.
type TrackedPrompt struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Text      string    `json:"text"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionStatus distinguishes a successful pipeline unit from a failed one.
// The status field is the contract that lets dashboards tell "pipeline failed"
// apart from "pipeline ran and found zero mentions".
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// ProviderExecution records one LLM call's outcome for one (prompt, provider)
// pair. Rows are append-only: created once per pipeline invocation and never
// mutated afterwards. Score and brand fields stay null/empty on error status.
type ProviderExecution struct {
	ID              uuid.UUID       `json:"id"`
	OrgID           uuid.UUID       `json:"org_id"`
	PromptID        uuid.UUID       `json:"prompt_id"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	Status          ExecutionStatus `json:"status"`
	AnswerText      string          `json:"answer_text,omitempty"`
	TokensIn        int             `json:"tokens_in"`
	TokensOut       int             `json:"tokens_out"`
	RawBrands       []string        `json:"raw_brands,omitempty"`
	OrgBrands       []string        `json:"org_brands,omitempty"`
	Competitors     []string        `json:"competitors,omitempty"`
	CompetitorCount int             `json:"competitor_count"`
	Score           *int            `json:"score,omitempty"`
	BrandPresent    bool            `json:"brand_present"`
	BrandPosition   *int            `json:"brand_position,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	RunAt           time.Time       `json:"run_at"`
}

// CatalogEntry is a known brand name tracked for one organization, either the
// organization's own brand or a detected competitor, with running usage stats.
// Name uniqueness per organization is reconciled by the merge routine rather
// than enforced by a hard constraint.
type CatalogEntry struct {
	ID               uuid.UUID `json:"id"`
	OrgID            uuid.UUID `json:"org_id"`
	Name             string    `json:"name"`
	IsOrgBrand       bool      `json:"is_org_brand"`
	Variants         []string  `json:"variants,omitempty"`
	FirstDetectedAt  time.Time `json:"first_detected_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	TotalAppearances int       `json:"total_appearances"`
	AverageScore     float64   `json:"average_score"`
}

// OrgOverlay holds per-organization manual overrides, consulted by the
// classifier and merger before committing a detection. Mutated only by
// explicit operator action.
type OrgOverlay struct {
	OrgID                uuid.UUID `json:"org_id"`
	CompetitorOverrides  []string  `json:"competitor_overrides,omitempty"`
	CompetitorExclusions []string  `json:"competitor_exclusions,omitempty"`
	BrandVariants        []string  `json:"brand_variants,omitempty"`
}

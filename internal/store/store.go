// Package store persists organizations, prompts, executions, and the brand
// catalog. Postgres is the production backend; SQLite serves local and
// single-binary use.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

// Store defines the persistence interface for the visibility pipeline. It
// is a superset of catalog.Storage, so a Store can back the Merger
// directly.
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *model.Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (model.Organization, error)

	// Overlays. A missing overlay reads as an empty one, never an error.
	GetOverlay(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error)
	SaveOverlay(ctx context.Context, overlay model.OrgOverlay) error

	// Tracked prompts. Disable is a soft flag; prompt rows are never deleted.
	CreatePrompt(ctx context.Context, prompt *model.TrackedPrompt) error
	GetPrompt(ctx context.Context, id uuid.UUID) (model.TrackedPrompt, error)
	ListPrompts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]model.TrackedPrompt, error)
	DisablePrompt(ctx context.Context, id uuid.UUID) error

	// Provider executions
	InsertExecution(ctx context.Context, exec *model.ProviderExecution) error
	ListExecutionsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.ProviderExecution, error)

	// Brand catalog
	ListCatalog(ctx context.Context, orgID uuid.UUID) ([]model.CatalogEntry, error)
	ApplyCatalogChanges(ctx context.Context, orgID uuid.UUID, changes catalog.ChangeSet) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

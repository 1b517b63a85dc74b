package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetOrganization(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()

	mock.ExpectQuery(`SELECT id, name, domain FROM organizations WHERE id = \$1`).
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "domain"}).
			AddRow(orgID, "Acme", "acme.com"))

	org, err := s.GetOrganization(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "acme.com", org.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOverlay_MissingRowIsEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()

	mock.ExpectQuery(`SELECT org_id, competitor_overrides, competitor_exclusions, brand_variants`).
		WithArgs(orgID).
		WillReturnError(pgx.ErrNoRows)

	overlay, err := s.GetOverlay(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, orgID, overlay.OrgID)
	assert.Empty(t, overlay.CompetitorOverrides)
	assert.Empty(t, overlay.CompetitorExclusions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOverlay_DecodesJSON(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()

	mock.ExpectQuery(`SELECT org_id, competitor_overrides, competitor_exclusions, brand_variants`).
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows([]string{"org_id", "competitor_overrides", "competitor_exclusions", "brand_variants"}).
			AddRow(orgID, []byte(`["Monday"]`), []byte(`["Zoho"]`), []byte(`["Acme Corp"]`)))

	overlay, err := s.GetOverlay(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Monday"}, overlay.CompetitorOverrides)
	assert.Equal(t, []string{"Zoho"}, overlay.CompetitorExclusions)
	assert.Equal(t, []string{"Acme Corp"}, overlay.BrandVariants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertExecution_AssignsIDAndTime(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO provider_executions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	exec := &model.ProviderExecution{
		OrgID:    uuid.New(),
		PromptID: uuid.New(),
		Provider: "openai",
		Status:   model.StatusSuccess,
	}
	require.NoError(t, s.InsertExecution(context.Background(), exec))

	assert.NotEqual(t, uuid.Nil, exec.ID)
	assert.False(t, exec.RunAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCatalog(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()
	entryID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, org_id, name, is_org_brand, variants`).
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "org_id", "name", "is_org_brand", "variants",
			"first_detected_at", "last_seen_at", "total_appearances", "average_score",
		}).AddRow(entryID, orgID, "Salesforce", false, []byte(`["SFDC"]`), now, now, 7, 6.5))

	entries, err := s.ListCatalog(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Salesforce", entries[0].Name)
	assert.Equal(t, []string{"SFDC"}, entries[0].Variants)
	assert.Equal(t, 7, entries[0].TotalAppearances)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyCatalogChanges_SingleTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()
	upsertID := uuid.New()
	deleteID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "brand_catalog" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM brand_catalog WHERE id = \$1 AND org_id = \$2`).
		WithArgs(deleteID, orgID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	changes := catalog.ChangeSet{
		Upserts: []model.CatalogEntry{{
			ID:               upsertID,
			OrgID:            orgID,
			Name:             "Salesforce",
			FirstDetectedAt:  now,
			LastSeenAt:       now,
			TotalAppearances: 3,
			AverageScore:     6.0,
		}},
		DeleteIDs: []uuid.UUID{deleteID},
	}
	require.NoError(t, s.ApplyCatalogChanges(context.Background(), orgID, changes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyCatalogChanges_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()
	deleteID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM brand_catalog`).
		WithArgs(deleteID, orgID).
		WillReturnError(assertableError("disk full"))
	mock.ExpectRollback()

	err := s.ApplyCatalogChanges(context.Background(), orgID, catalog.ChangeSet{
		DeleteIDs: []uuid.UUID{deleteID},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete catalog entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyCatalogChanges_EmptyIsNoOp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.ApplyCatalogChanges(context.Background(), uuid.New(), catalog.ChangeSet{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DisablePrompt_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	promptID := uuid.New()

	mock.ExpectExec(`UPDATE tracked_prompts SET active = false WHERE id = \$1`).
		WithArgs(promptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.DisablePrompt(context.Background(), promptID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListExecutionsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	orgID := uuid.New()
	since := time.Now().Add(-7 * 24 * time.Hour)
	score := 7
	runAt := time.Now()

	mock.ExpectQuery(`SELECT id, org_id, prompt_id, provider, model, status, answer_text`).
		WithArgs(orgID, since).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "org_id", "prompt_id", "provider", "model", "status", "answer_text",
			"tokens_in", "tokens_out", "raw_brands", "org_brands", "competitors",
			"competitor_count", "score", "brand_present", "brand_position", "error_message", "run_at",
		}).AddRow(uuid.New(), orgID, uuid.New(), "openai", "gpt-4.1", model.StatusSuccess, "HubSpot wins.",
			10, 5, []byte(`["HubSpot"]`), []byte(`["HubSpot"]`), []byte(`["Salesforce"]`),
			1, &score, true, nil, nil, runAt))

	executions, err := s.ListExecutionsSince(context.Background(), orgID, since)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, model.StatusSuccess, executions[0].Status)
	assert.Equal(t, []string{"Salesforce"}, executions[0].Competitors)
	require.NotNil(t, executions[0].Score)
	assert.Equal(t, 7, *executions[0].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// assertableError is a trivial error for mock returns.
type assertableError string

func (e assertableError) Error() string { return string(e) }

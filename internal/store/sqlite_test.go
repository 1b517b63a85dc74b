package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedOrg(t *testing.T, st *SQLiteStore) model.Organization {
	t.Helper()
	org := model.Organization{Name: "Acme", Domain: "acme.com"}
	require.NoError(t, st.CreateOrganization(context.Background(), &org))
	return org
}

func seedPrompt(t *testing.T, st *SQLiteStore, orgID uuid.UUID) model.TrackedPrompt {
	t.Helper()
	p := model.TrackedPrompt{OrgID: orgID, Text: "best CRM for small teams"}
	require.NoError(t, st.CreatePrompt(context.Background(), &p))
	return p
}

func TestSQLite_Organization_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	org := seedOrg(t, st)

	got, err := st.GetOrganization(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.Name, got.Name)
	assert.Equal(t, org.Domain, got.Domain)
	assert.Equal(t, org.ID, got.ID)
}

func TestSQLite_Organization_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetOrganization(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestSQLite_Overlay_MissingReadsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	org := seedOrg(t, st)

	overlay, err := st.GetOverlay(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, overlay.OrgID)
	assert.Empty(t, overlay.CompetitorOverrides)
	assert.Empty(t, overlay.CompetitorExclusions)
	assert.Empty(t, overlay.BrandVariants)
}

func TestSQLite_Overlay_SaveAndOverwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)

	overlay := model.OrgOverlay{
		OrgID:                org.ID,
		CompetitorExclusions: []string{"Zendesk"},
		BrandVariants:        []string{"Acme CRM"},
	}
	require.NoError(t, st.SaveOverlay(ctx, overlay))

	got, err := st.GetOverlay(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zendesk"}, got.CompetitorExclusions)
	assert.Equal(t, []string{"Acme CRM"}, got.BrandVariants)

	overlay.CompetitorExclusions = []string{"Zendesk", "Intercom"}
	require.NoError(t, st.SaveOverlay(ctx, overlay))

	got, err = st.GetOverlay(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zendesk", "Intercom"}, got.CompetitorExclusions)
}

func TestSQLite_Prompt_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	org := seedOrg(t, st)
	p := seedPrompt(t, st, org.ID)

	got, err := st.GetPrompt(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Text, got.Text)
	assert.Equal(t, org.ID, got.OrgID)
	assert.True(t, got.Active)
}

func TestSQLite_Prompt_ListActiveOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)

	active := seedPrompt(t, st, org.ID)
	disabled := seedPrompt(t, st, org.ID)
	require.NoError(t, st.DisablePrompt(ctx, disabled.ID))

	prompts, err := st.ListPrompts(ctx, org.ID, true)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, active.ID, prompts[0].ID)

	all, err := st.ListPrompts(ctx, org.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_Prompt_DisableMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.DisablePrompt(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Execution_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)
	prompt := seedPrompt(t, st, org.ID)

	score := 8
	pos := 2
	exec := model.ProviderExecution{
		OrgID:           org.ID,
		PromptID:        prompt.ID,
		Provider:        "openai",
		Model:           "gpt-4.1",
		Status:          model.StatusSuccess,
		AnswerText:      "Acme and HubSpot lead.",
		TokensIn:        15,
		TokensOut:       120,
		RawBrands:       []string{"Acme", "HubSpot"},
		OrgBrands:       []string{"Acme"},
		Competitors:     []string{"HubSpot"},
		CompetitorCount: 1,
		Score:           &score,
		BrandPresent:    true,
		BrandPosition:   &pos,
	}
	require.NoError(t, st.InsertExecution(ctx, &exec))
	assert.NotEqual(t, uuid.Nil, exec.ID)
	assert.False(t, exec.RunAt.IsZero())

	got, err := st.ListExecutionsSince(ctx, org.ID, exec.RunAt.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusSuccess, got[0].Status)
	assert.Equal(t, []string{"HubSpot"}, got[0].Competitors)
	require.NotNil(t, got[0].Score)
	assert.Equal(t, 8, *got[0].Score)
	require.NotNil(t, got[0].BrandPosition)
	assert.Equal(t, 2, *got[0].BrandPosition)
	assert.Nil(t, got[0].ErrorMessage)
}

func TestSQLite_Execution_SinceFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)
	prompt := seedPrompt(t, st, org.ID)

	old := model.ProviderExecution{
		OrgID: org.ID, PromptID: prompt.ID, Provider: "openai",
		Status: model.StatusSuccess, RunAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := model.ProviderExecution{
		OrgID: org.ID, PromptID: prompt.ID, Provider: "openai",
		Status: model.StatusSuccess,
	}
	require.NoError(t, st.InsertExecution(ctx, &old))
	require.NoError(t, st.InsertExecution(ctx, &recent))

	got, err := st.ListExecutionsSince(ctx, org.ID, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}

func TestSQLite_Execution_ErrorRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)
	prompt := seedPrompt(t, st, org.ID)

	msg := "openai: all models failed"
	exec := model.ProviderExecution{
		OrgID: org.ID, PromptID: prompt.ID, Provider: "openai",
		Status: model.StatusError, ErrorMessage: &msg,
	}
	require.NoError(t, st.InsertExecution(ctx, &exec))

	got, err := st.ListExecutionsSince(ctx, org.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusError, got[0].Status)
	require.NotNil(t, got[0].ErrorMessage)
	assert.Equal(t, msg, *got[0].ErrorMessage)
	assert.Nil(t, got[0].Score)
}

func TestSQLite_Catalog_UpsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)

	now := time.Now().UTC().Truncate(time.Second)
	entry := model.CatalogEntry{
		ID: uuid.New(), OrgID: org.ID, Name: "HubSpot",
		Variants: []string{"Hub Spot"}, FirstDetectedAt: now.Add(-72 * time.Hour),
		LastSeenAt: now, TotalAppearances: 4, AverageScore: 6.5,
	}
	require.NoError(t, st.ApplyCatalogChanges(ctx, org.ID, catalog.ChangeSet{
		Upserts: []model.CatalogEntry{entry},
	}))

	entries, err := st.ListCatalog(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HubSpot", entries[0].Name)
	assert.Equal(t, []string{"Hub Spot"}, entries[0].Variants)
	assert.Equal(t, 4, entries[0].TotalAppearances)
	assert.InDelta(t, 6.5, entries[0].AverageScore, 0.001)

	// Upsert the same row with new stats.
	entry.TotalAppearances = 9
	entry.AverageScore = 7.2
	require.NoError(t, st.ApplyCatalogChanges(ctx, org.ID, catalog.ChangeSet{
		Upserts: []model.CatalogEntry{entry},
	}))

	entries, err = st.ListCatalog(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 9, entries[0].TotalAppearances)
	assert.InDelta(t, 7.2, entries[0].AverageScore, 0.001)
}

func TestSQLite_Catalog_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	org := seedOrg(t, st)

	now := time.Now().UTC()
	keep := model.CatalogEntry{ID: uuid.New(), OrgID: org.ID, Name: "HubSpot", FirstDetectedAt: now, LastSeenAt: now}
	drop := model.CatalogEntry{ID: uuid.New(), OrgID: org.ID, Name: "Hub Spot", FirstDetectedAt: now, LastSeenAt: now}
	require.NoError(t, st.ApplyCatalogChanges(ctx, org.ID, catalog.ChangeSet{
		Upserts: []model.CatalogEntry{keep, drop},
	}))

	require.NoError(t, st.ApplyCatalogChanges(ctx, org.ID, catalog.ChangeSet{
		DeleteIDs: []uuid.UUID{drop.ID},
	}))

	entries, err := st.ListCatalog(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, keep.ID, entries[0].ID)
}

func TestSQLite_Catalog_EmptyChangeSetNoOp(t *testing.T) {
	st := newTestSQLiteStore(t)
	org := seedOrg(t, st)

	require.NoError(t, st.ApplyCatalogChanges(context.Background(), org.ID, catalog.ChangeSet{}))
}

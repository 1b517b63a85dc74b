package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/config"
	"github.com/brandlens/visibility/internal/model"
	"github.com/brandlens/visibility/internal/pipeline"
	"github.com/brandlens/visibility/internal/provider"
)

// memStore is a minimal in-memory store.Store for handler tests.
type memStore struct {
	mu      sync.Mutex
	org     model.Organization
	prompts map[uuid.UUID]model.TrackedPrompt
	catalog []model.CatalogEntry
	execs   []model.ProviderExecution
}

func newMemStore() *memStore {
	return &memStore{
		org:     model.Organization{ID: uuid.New(), Name: "Acme", Domain: "acme.com"},
		prompts: make(map[uuid.UUID]model.TrackedPrompt),
	}
}

func (s *memStore) CreateOrganization(_ context.Context, org *model.Organization) error {
	s.org = *org
	return nil
}

func (s *memStore) GetOrganization(_ context.Context, id uuid.UUID) (model.Organization, error) {
	if id != s.org.ID {
		return model.Organization{}, eris.New("store: organization not found")
	}
	return s.org, nil
}

func (s *memStore) GetOverlay(_ context.Context, orgID uuid.UUID) (model.OrgOverlay, error) {
	return model.OrgOverlay{OrgID: orgID}, nil
}

func (s *memStore) SaveOverlay(context.Context, model.OrgOverlay) error { return nil }

func (s *memStore) CreatePrompt(_ context.Context, p *model.TrackedPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[p.ID] = *p
	return nil
}

func (s *memStore) GetPrompt(_ context.Context, id uuid.UUID) (model.TrackedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[id]
	if !ok {
		return model.TrackedPrompt{}, eris.New("store: prompt not found")
	}
	return p, nil
}

func (s *memStore) ListPrompts(context.Context, uuid.UUID, bool) ([]model.TrackedPrompt, error) {
	return nil, nil
}

func (s *memStore) DisablePrompt(context.Context, uuid.UUID) error { return nil }

func (s *memStore) InsertExecution(_ context.Context, exec *model.ProviderExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec.ID = uuid.New()
	exec.RunAt = time.Now()
	s.execs = append(s.execs, *exec)
	return nil
}

func (s *memStore) executions() []model.ProviderExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ProviderExecution(nil), s.execs...)
}

func (s *memStore) ListExecutionsSince(_ context.Context, orgID uuid.UUID, since time.Time) ([]model.ProviderExecution, error) {
	var out []model.ProviderExecution
	for _, e := range s.executions() {
		if e.OrgID == orgID && !e.RunAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListCatalog(_ context.Context, orgID uuid.UUID) ([]model.CatalogEntry, error) {
	var out []model.CatalogEntry
	for _, e := range s.catalog {
		if e.OrgID == orgID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ApplyCatalogChanges(context.Context, uuid.UUID, catalog.ChangeSet) error {
	return nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// stubProvider answers every prompt with a fixed text.
type stubProvider struct{ text string }

func (s stubProvider) Execute(context.Context, string) (*provider.Answer, error) {
	return &provider.Answer{Text: s.text, Model: "gpt-4.1"}, nil
}

type stubProviders struct{ executor pipeline.Executor }

func (s stubProviders) Get(string) (pipeline.Executor, error) { return s.executor, nil }

func serveTestConfig() *config.Config {
	return &config.Config{
		Provider:   config.ProviderDefaults{TimeoutSecs: 30},
		Classifier: config.ClassifierConfig{MinConfidence: 0.6},
		Merger:     config.MergerConfig{LookbackDays: 7, MinMentions: 3, ScoreGate: 7.0, RetentionDays: 14, DedupeThreshold: 0.7},
	}
}

func newTestRouter(st *memStore) http.Handler {
	answer := "Acme leads the pack.\n" + `{"brands": ["Acme", "HubSpot"]}`
	p := pipeline.New(serveTestConfig(), st, stubProviders{executor: stubProvider{text: answer}})
	return newRouter(context.Background(), st, p)
}

func TestServeHealthz(t *testing.T) {
	router := newTestRouter(newMemStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeRunAccepted(t *testing.T) {
	st := newMemStore()
	prompt := model.TrackedPrompt{ID: uuid.New(), OrgID: st.org.ID, Text: "best CRM", Active: true}
	require.NoError(t, st.CreatePrompt(context.Background(), &prompt))
	router := newTestRouter(st)

	body := `{"prompt_id":"` + prompt.ID.String() + `","provider":"openai"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), prompt.ID.String())

	// The run executes asynchronously.
	require.Eventually(t, func() bool {
		return len(st.executions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.StatusSuccess, st.executions()[0].Status)
}

func TestServeRunValidation(t *testing.T) {
	st := newMemStore()
	router := newTestRouter(st)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"prompt_id":`, http.StatusBadRequest},
		{"bad uuid", `{"prompt_id":"nope","provider":"openai"}`, http.StatusBadRequest},
		{"missing provider", `{"prompt_id":"` + uuid.NewString() + `"}`, http.StatusBadRequest},
		{"unknown prompt", `{"prompt_id":"` + uuid.NewString() + `","provider":"openai"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code)
			assert.Empty(t, st.executions())
		})
	}
}

func TestServeCatalogList(t *testing.T) {
	st := newMemStore()
	st.catalog = []model.CatalogEntry{
		{ID: uuid.New(), OrgID: st.org.ID, Name: "HubSpot", TotalAppearances: 4, AverageScore: 6.5},
	}
	router := newTestRouter(st)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orgs/"+st.org.ID.String()+"/catalog", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "HubSpot")
}

func TestServeCatalogBadOrgID(t *testing.T) {
	router := newTestRouter(newMemStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orgs/not-a-uuid/catalog", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeExecutionsSinceFilter(t *testing.T) {
	st := newMemStore()
	router := newTestRouter(st)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/orgs/"+st.org.ID.String()+"/executions?since=not-a-time", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

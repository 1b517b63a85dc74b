package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/db"
	"github.com/brandlens/visibility/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths: execution inserts and the merger's window reads.
var preparedStatements = map[string]string{
	"insert_execution": `INSERT INTO provider_executions (
		id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
	"list_executions_since": `SELECT id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
		FROM provider_executions WHERE org_id = $1 AND run_at >= $2 ORDER BY run_at`,
	"list_catalog": `SELECT id, org_id, name, is_org_brand, variants,
		first_detected_at, last_seen_at, total_appearances, average_score
		FROM brand_catalog WHERE org_id = $1 ORDER BY total_appearances DESC, name`,
	"get_overlay": `SELECT org_id, competitor_overrides, competitor_exclusions, brand_variants
		FROM org_overlays WHERE org_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id     UUID PRIMARY KEY,
	name   TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS org_overlays (
	org_id                UUID PRIMARY KEY REFERENCES organizations(id),
	competitor_overrides  JSONB NOT NULL DEFAULT '[]',
	competitor_exclusions JSONB NOT NULL DEFAULT '[]',
	brand_variants        JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS tracked_prompts (
	id         UUID PRIMARY KEY,
	org_id     UUID NOT NULL REFERENCES organizations(id),
	text       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tracked_prompts_org ON tracked_prompts (org_id) WHERE active;

CREATE TABLE IF NOT EXISTS provider_executions (
	id               UUID PRIMARY KEY,
	org_id           UUID NOT NULL REFERENCES organizations(id),
	prompt_id        UUID NOT NULL REFERENCES tracked_prompts(id),
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	answer_text      TEXT NOT NULL DEFAULT '',
	tokens_in        INTEGER NOT NULL DEFAULT 0,
	tokens_out       INTEGER NOT NULL DEFAULT 0,
	raw_brands       JSONB NOT NULL DEFAULT '[]',
	org_brands       JSONB NOT NULL DEFAULT '[]',
	competitors      JSONB NOT NULL DEFAULT '[]',
	competitor_count INTEGER NOT NULL DEFAULT 0,
	score            INTEGER,
	brand_present    BOOLEAN NOT NULL DEFAULT false,
	brand_position   INTEGER,
	error_message    TEXT,
	run_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_provider_executions_org_run ON provider_executions (org_id, run_at);

CREATE TABLE IF NOT EXISTS brand_catalog (
	id                UUID PRIMARY KEY,
	org_id            UUID NOT NULL REFERENCES organizations(id),
	name              TEXT NOT NULL,
	is_org_brand      BOOLEAN NOT NULL DEFAULT false,
	variants          JSONB NOT NULL DEFAULT '[]',
	first_detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	total_appearances INTEGER NOT NULL DEFAULT 0,
	average_score     DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_brand_catalog_org ON brand_catalog (org_id);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateOrganization inserts an organization row.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *model.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, domain) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.Domain)
	if err != nil {
		return eris.Wrap(err, "postgres: create organization")
	}
	return nil
}

// GetOrganization fetches an organization by ID.
func (s *PostgresStore) GetOrganization(ctx context.Context, id uuid.UUID) (model.Organization, error) {
	var org model.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, domain FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.Domain)
	if err != nil {
		return model.Organization{}, eris.Wrapf(err, "postgres: get organization %s", id)
	}
	return org, nil
}

// GetOverlay fetches the organization's overlay; a missing row reads as an
// empty overlay.
func (s *PostgresStore) GetOverlay(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error) {
	overlay := model.OrgOverlay{OrgID: orgID}
	var overrides, exclusions, variants []byte
	err := s.pool.QueryRow(ctx,
		`SELECT org_id, competitor_overrides, competitor_exclusions, brand_variants
		FROM org_overlays WHERE org_id = $1`, orgID).
		Scan(&overlay.OrgID, &overrides, &exclusions, &variants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return overlay, nil
		}
		return model.OrgOverlay{}, eris.Wrapf(err, "postgres: get overlay %s", orgID)
	}
	if err := unmarshalStrings(overrides, &overlay.CompetitorOverrides); err != nil {
		return model.OrgOverlay{}, eris.Wrap(err, "postgres: decode overlay overrides")
	}
	if err := unmarshalStrings(exclusions, &overlay.CompetitorExclusions); err != nil {
		return model.OrgOverlay{}, eris.Wrap(err, "postgres: decode overlay exclusions")
	}
	if err := unmarshalStrings(variants, &overlay.BrandVariants); err != nil {
		return model.OrgOverlay{}, eris.Wrap(err, "postgres: decode overlay variants")
	}
	return overlay, nil
}

// SaveOverlay writes the full overlay, replacing any prior row.
func (s *PostgresStore) SaveOverlay(ctx context.Context, overlay model.OrgOverlay) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_overlays (org_id, competitor_overrides, competitor_exclusions, brand_variants)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id) DO UPDATE SET
			competitor_overrides = EXCLUDED.competitor_overrides,
			competitor_exclusions = EXCLUDED.competitor_exclusions,
			brand_variants = EXCLUDED.brand_variants`,
		overlay.OrgID,
		marshalStrings(overlay.CompetitorOverrides),
		marshalStrings(overlay.CompetitorExclusions),
		marshalStrings(overlay.BrandVariants))
	if err != nil {
		return eris.Wrapf(err, "postgres: save overlay %s", overlay.OrgID)
	}
	return nil
}

// CreatePrompt inserts a tracked prompt, assigning its ID and timestamp.
func (s *PostgresStore) CreatePrompt(ctx context.Context, prompt *model.TrackedPrompt) error {
	if prompt.ID == uuid.Nil {
		prompt.ID = uuid.New()
	}
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = time.Now()
	}
	prompt.Active = true
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_prompts (id, org_id, text, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		prompt.ID, prompt.OrgID, prompt.Text, prompt.Active, prompt.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: create prompt")
	}
	return nil
}

// GetPrompt fetches a tracked prompt by ID.
func (s *PostgresStore) GetPrompt(ctx context.Context, id uuid.UUID) (model.TrackedPrompt, error) {
	var p model.TrackedPrompt
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE id = $1`, id).
		Scan(&p.ID, &p.OrgID, &p.Text, &p.Active, &p.CreatedAt)
	if err != nil {
		return model.TrackedPrompt{}, eris.Wrapf(err, "postgres: get prompt %s", id)
	}
	return p, nil
}

// ListPrompts returns the organization's prompts, optionally active only.
func (s *PostgresStore) ListPrompts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]model.TrackedPrompt, error) {
	query := `SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE org_id = $1 ORDER BY created_at`
	if activeOnly {
		query = `SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE org_id = $1 AND active ORDER BY created_at`
	}
	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompts")
	}
	defer rows.Close()

	var prompts []model.TrackedPrompt
	for rows.Next() {
		var p model.TrackedPrompt
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Text, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// DisablePrompt soft-disables a prompt.
func (s *PostgresStore) DisablePrompt(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tracked_prompts SET active = false WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: disable prompt %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: prompt %s not found", id)
	}
	return nil
}

// InsertExecution appends one provider execution row.
func (s *PostgresStore) InsertExecution(ctx context.Context, exec *model.ProviderExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.RunAt.IsZero() {
		exec.RunAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO provider_executions (
		id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		exec.ID, exec.OrgID, exec.PromptID, exec.Provider, exec.Model, exec.Status, exec.AnswerText,
		exec.TokensIn, exec.TokensOut,
		marshalStrings(exec.RawBrands), marshalStrings(exec.OrgBrands), marshalStrings(exec.Competitors),
		exec.CompetitorCount, exec.Score, exec.BrandPresent, exec.BrandPosition, exec.ErrorMessage, exec.RunAt)
	if err != nil {
		return eris.Wrap(err, "postgres: insert execution")
	}
	return nil
}

// ListExecutionsSince returns the organization's executions in the window,
// oldest first.
func (s *PostgresStore) ListExecutionsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.ProviderExecution, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
		FROM provider_executions WHERE org_id = $1 AND run_at >= $2 ORDER BY run_at`, orgID, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list executions")
	}
	defer rows.Close()

	var executions []model.ProviderExecution
	for rows.Next() {
		var e model.ProviderExecution
		var rawBrands, orgBrands, competitors []byte
		if err := rows.Scan(&e.ID, &e.OrgID, &e.PromptID, &e.Provider, &e.Model, &e.Status, &e.AnswerText,
			&e.TokensIn, &e.TokensOut, &rawBrands, &orgBrands, &competitors,
			&e.CompetitorCount, &e.Score, &e.BrandPresent, &e.BrandPosition, &e.ErrorMessage, &e.RunAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan execution")
		}
		if err := unmarshalStrings(rawBrands, &e.RawBrands); err != nil {
			return nil, eris.Wrap(err, "postgres: decode raw brands")
		}
		if err := unmarshalStrings(orgBrands, &e.OrgBrands); err != nil {
			return nil, eris.Wrap(err, "postgres: decode org brands")
		}
		if err := unmarshalStrings(competitors, &e.Competitors); err != nil {
			return nil, eris.Wrap(err, "postgres: decode competitors")
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// ListCatalog returns the organization's catalog, most-seen entries first.
func (s *PostgresStore) ListCatalog(ctx context.Context, orgID uuid.UUID) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, org_id, name, is_org_brand, variants,
		first_detected_at, last_seen_at, total_appearances, average_score
		FROM brand_catalog WHERE org_id = $1 ORDER BY total_appearances DESC, name`, orgID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var variants []byte
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Name, &e.IsOrgBrand, &variants,
			&e.FirstDetectedAt, &e.LastSeenAt, &e.TotalAppearances, &e.AverageScore); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog entry")
		}
		if err := unmarshalStrings(variants, &e.Variants); err != nil {
			return nil, eris.Wrap(err, "postgres: decode variants")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ApplyCatalogChanges applies one merge pass atomically: all upserts and
// deletes in a single transaction, per the all-or-nothing per-org rule.
func (s *PostgresStore) ApplyCatalogChanges(ctx context.Context, orgID uuid.UUID, changes catalog.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin catalog tx")
	}
	defer tx.Rollback(ctx)

	if len(changes.Upserts) > 0 {
		rows := make([][]any, len(changes.Upserts))
		for i, e := range changes.Upserts {
			rows[i] = []any{
				e.ID, orgID, e.Name, e.IsOrgBrand, marshalStrings(e.Variants),
				e.FirstDetectedAt, e.LastSeenAt, e.TotalAppearances, e.AverageScore,
			}
		}
		_, err := db.Upsert(ctx, tx, db.UpsertConfig{
			Table: "brand_catalog",
			Columns: []string{
				"id", "org_id", "name", "is_org_brand", "variants",
				"first_detected_at", "last_seen_at", "total_appearances", "average_score",
			},
			ConflictKeys: []string{"id"},
		}, rows)
		if err != nil {
			return eris.Wrap(err, "postgres: upsert catalog entries")
		}
	}

	for _, id := range changes.DeleteIDs {
		if _, err := tx.Exec(ctx, `DELETE FROM brand_catalog WHERE id = $1 AND org_id = $2`, id, orgID); err != nil {
			return eris.Wrapf(err, "postgres: delete catalog entry %s", id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit catalog tx")
	}
	return nil
}

// marshalStrings encodes a string slice as a JSONB value; nil encodes as [].
func marshalStrings(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return data
}

func unmarshalStrings(data []byte, dest *[]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

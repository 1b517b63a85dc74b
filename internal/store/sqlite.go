package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. UUIDs are stored
// as their text form, string slices as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS org_overlays (
	org_id                TEXT PRIMARY KEY REFERENCES organizations(id),
	competitor_overrides  TEXT NOT NULL DEFAULT '[]',
	competitor_exclusions TEXT NOT NULL DEFAULT '[]',
	brand_variants        TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS tracked_prompts (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL REFERENCES organizations(id),
	text       TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS provider_executions (
	id               TEXT PRIMARY KEY,
	org_id           TEXT NOT NULL REFERENCES organizations(id),
	prompt_id        TEXT NOT NULL REFERENCES tracked_prompts(id),
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	answer_text      TEXT NOT NULL DEFAULT '',
	tokens_in        INTEGER NOT NULL DEFAULT 0,
	tokens_out       INTEGER NOT NULL DEFAULT 0,
	raw_brands       TEXT NOT NULL DEFAULT '[]',
	org_brands       TEXT NOT NULL DEFAULT '[]',
	competitors      TEXT NOT NULL DEFAULT '[]',
	competitor_count INTEGER NOT NULL DEFAULT 0,
	score            INTEGER,
	brand_present    INTEGER NOT NULL DEFAULT 0,
	brand_position   INTEGER,
	error_message    TEXT,
	run_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS brand_catalog (
	id                TEXT PRIMARY KEY,
	org_id            TEXT NOT NULL REFERENCES organizations(id),
	name              TEXT NOT NULL,
	is_org_brand      INTEGER NOT NULL DEFAULT 0,
	variants          TEXT NOT NULL DEFAULT '[]',
	first_detected_at DATETIME NOT NULL,
	last_seen_at      DATETIME NOT NULL,
	total_appearances INTEGER NOT NULL DEFAULT 0,
	average_score     REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tracked_prompts_org ON tracked_prompts(org_id);
CREATE INDEX IF NOT EXISTS idx_provider_executions_org_run ON provider_executions(org_id, run_at);
CREATE INDEX IF NOT EXISTS idx_brand_catalog_org ON brand_catalog(org_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *model.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, domain) VALUES (?, ?, ?)`,
		org.ID.String(), org.Name, org.Domain)
	return eris.Wrap(err, "sqlite: create organization")
}

func (s *SQLiteStore) GetOrganization(ctx context.Context, id uuid.UUID) (model.Organization, error) {
	var org model.Organization
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, domain FROM organizations WHERE id = ?`, id.String()).
		Scan(&rawID, &org.Name, &org.Domain)
	if err != nil {
		return model.Organization{}, eris.Wrapf(err, "sqlite: get organization %s", id)
	}
	org.ID, err = uuid.Parse(rawID)
	if err != nil {
		return model.Organization{}, eris.Wrap(err, "sqlite: parse organization id")
	}
	return org, nil
}

func (s *SQLiteStore) GetOverlay(ctx context.Context, orgID uuid.UUID) (model.OrgOverlay, error) {
	overlay := model.OrgOverlay{OrgID: orgID}
	var overrides, exclusions, variants string
	err := s.db.QueryRowContext(ctx,
		`SELECT competitor_overrides, competitor_exclusions, brand_variants FROM org_overlays WHERE org_id = ?`,
		orgID.String()).
		Scan(&overrides, &exclusions, &variants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return overlay, nil
		}
		return model.OrgOverlay{}, eris.Wrapf(err, "sqlite: get overlay %s", orgID)
	}
	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{overrides, &overlay.CompetitorOverrides},
		{exclusions, &overlay.CompetitorExclusions},
		{variants, &overlay.BrandVariants},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return model.OrgOverlay{}, eris.Wrap(err, "sqlite: decode overlay")
		}
	}
	return overlay, nil
}

func (s *SQLiteStore) SaveOverlay(ctx context.Context, overlay model.OrgOverlay) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_overlays (org_id, competitor_overrides, competitor_exclusions, brand_variants)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (org_id) DO UPDATE SET
			competitor_overrides = excluded.competitor_overrides,
			competitor_exclusions = excluded.competitor_exclusions,
			brand_variants = excluded.brand_variants`,
		overlay.OrgID.String(),
		string(marshalStrings(overlay.CompetitorOverrides)),
		string(marshalStrings(overlay.CompetitorExclusions)),
		string(marshalStrings(overlay.BrandVariants)))
	return eris.Wrapf(err, "sqlite: save overlay %s", overlay.OrgID)
}

func (s *SQLiteStore) CreatePrompt(ctx context.Context, prompt *model.TrackedPrompt) error {
	if prompt.ID == uuid.Nil {
		prompt.ID = uuid.New()
	}
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = time.Now().UTC()
	}
	prompt.Active = true
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_prompts (id, org_id, text, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		prompt.ID.String(), prompt.OrgID.String(), prompt.Text, prompt.Active, prompt.CreatedAt)
	return eris.Wrap(err, "sqlite: create prompt")
}

func (s *SQLiteStore) GetPrompt(ctx context.Context, id uuid.UUID) (model.TrackedPrompt, error) {
	var p model.TrackedPrompt
	var rawID, rawOrgID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE id = ?`, id.String()).
		Scan(&rawID, &rawOrgID, &p.Text, &p.Active, &p.CreatedAt)
	if err != nil {
		return model.TrackedPrompt{}, eris.Wrapf(err, "sqlite: get prompt %s", id)
	}
	if p.ID, err = uuid.Parse(rawID); err != nil {
		return model.TrackedPrompt{}, eris.Wrap(err, "sqlite: parse prompt id")
	}
	if p.OrgID, err = uuid.Parse(rawOrgID); err != nil {
		return model.TrackedPrompt{}, eris.Wrap(err, "sqlite: parse prompt org id")
	}
	return p, nil
}

func (s *SQLiteStore) ListPrompts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]model.TrackedPrompt, error) {
	query := `SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE org_id = ? ORDER BY created_at`
	if activeOnly {
		query = `SELECT id, org_id, text, active, created_at FROM tracked_prompts WHERE org_id = ? AND active = 1 ORDER BY created_at`
	}
	rows, err := s.db.QueryContext(ctx, query, orgID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prompts")
	}
	defer rows.Close()

	var prompts []model.TrackedPrompt
	for rows.Next() {
		var p model.TrackedPrompt
		var rawID, rawOrgID string
		if err := rows.Scan(&rawID, &rawOrgID, &p.Text, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		if p.ID, err = uuid.Parse(rawID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse prompt id")
		}
		if p.OrgID, err = uuid.Parse(rawOrgID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse prompt org id")
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func (s *SQLiteStore) DisablePrompt(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tracked_prompts SET active = 0 WHERE id = ?`, id.String())
	if err != nil {
		return eris.Wrapf(err, "sqlite: disable prompt %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: prompt %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) InsertExecution(ctx context.Context, exec *model.ProviderExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.RunAt.IsZero() {
		exec.RunAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO provider_executions (
		id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID.String(), exec.OrgID.String(), exec.PromptID.String(),
		exec.Provider, exec.Model, string(exec.Status), exec.AnswerText,
		exec.TokensIn, exec.TokensOut,
		string(marshalStrings(exec.RawBrands)), string(marshalStrings(exec.OrgBrands)), string(marshalStrings(exec.Competitors)),
		exec.CompetitorCount, exec.Score, exec.BrandPresent, exec.BrandPosition, exec.ErrorMessage, exec.RunAt)
	return eris.Wrap(err, "sqlite: insert execution")
}

func (s *SQLiteStore) ListExecutionsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.ProviderExecution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, org_id, prompt_id, provider, model, status, answer_text,
		tokens_in, tokens_out, raw_brands, org_brands, competitors,
		competitor_count, score, brand_present, brand_position, error_message, run_at
		FROM provider_executions WHERE org_id = ? AND run_at >= ? ORDER BY run_at`,
		orgID.String(), since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list executions")
	}
	defer rows.Close()

	var executions []model.ProviderExecution
	for rows.Next() {
		var e model.ProviderExecution
		var rawID, rawOrgID, rawPromptID, status string
		var rawBrands, orgBrands, competitors string
		if err := rows.Scan(&rawID, &rawOrgID, &rawPromptID, &e.Provider, &e.Model, &status, &e.AnswerText,
			&e.TokensIn, &e.TokensOut, &rawBrands, &orgBrands, &competitors,
			&e.CompetitorCount, &e.Score, &e.BrandPresent, &e.BrandPosition, &e.ErrorMessage, &e.RunAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan execution")
		}
		e.Status = model.ExecutionStatus(status)
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse execution id")
		}
		if e.OrgID, err = uuid.Parse(rawOrgID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse execution org id")
		}
		if e.PromptID, err = uuid.Parse(rawPromptID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse execution prompt id")
		}
		for _, pair := range []struct {
			raw  string
			dest *[]string
		}{
			{rawBrands, &e.RawBrands},
			{orgBrands, &e.OrgBrands},
			{competitors, &e.Competitors},
		} {
			if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode execution brands")
			}
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func (s *SQLiteStore) ListCatalog(ctx context.Context, orgID uuid.UUID) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, org_id, name, is_org_brand, variants,
		first_detected_at, last_seen_at, total_appearances, average_score
		FROM brand_catalog WHERE org_id = ? ORDER BY total_appearances DESC, name`, orgID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var rawID, rawOrgID, variants string
		if err := rows.Scan(&rawID, &rawOrgID, &e.Name, &e.IsOrgBrand, &variants,
			&e.FirstDetectedAt, &e.LastSeenAt, &e.TotalAppearances, &e.AverageScore); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog entry")
		}
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse catalog id")
		}
		if e.OrgID, err = uuid.Parse(rawOrgID); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse catalog org id")
		}
		if err := json.Unmarshal([]byte(variants), &e.Variants); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode variants")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ApplyCatalogChanges(ctx context.Context, orgID uuid.UUID, changes catalog.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin catalog tx")
	}
	defer tx.Rollback()

	for _, e := range changes.Upserts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO brand_catalog (
				id, org_id, name, is_org_brand, variants,
				first_detected_at, last_seen_at, total_appearances, average_score
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				is_org_brand = excluded.is_org_brand,
				variants = excluded.variants,
				first_detected_at = excluded.first_detected_at,
				last_seen_at = excluded.last_seen_at,
				total_appearances = excluded.total_appearances,
				average_score = excluded.average_score`,
			e.ID.String(), orgID.String(), e.Name, e.IsOrgBrand, string(marshalStrings(e.Variants)),
			e.FirstDetectedAt, e.LastSeenAt, e.TotalAppearances, e.AverageScore)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert catalog entry %s", e.Name)
		}
	}

	for _, id := range changes.DeleteIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM brand_catalog WHERE id = ? AND org_id = ?`,
			id.String(), orgID.String()); err != nil {
			return eris.Wrapf(err, "sqlite: delete catalog entry %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit catalog tx")
	}
	return nil
}

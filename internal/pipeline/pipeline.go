// Package pipeline runs one tracked prompt through an LLM provider, analyzes
// the answer for brand mentions, and persists the resulting execution.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/catalog"
	"github.com/brandlens/visibility/internal/classify"
	"github.com/brandlens/visibility/internal/config"
	"github.com/brandlens/visibility/internal/extract"
	"github.com/brandlens/visibility/internal/model"
	"github.com/brandlens/visibility/internal/provider"
	"github.com/brandlens/visibility/internal/score"
	"github.com/brandlens/visibility/internal/store"
)

// Executor runs a prompt against one provider's model chain.
type Executor interface {
	Execute(ctx context.Context, prompt string) (*provider.Answer, error)
}

// Providers resolves a provider name to an executable chain.
type Providers interface {
	Get(name string) (Executor, error)
}

// FromRegistry adapts a provider.Registry to the Providers interface.
func FromRegistry(reg *provider.Registry) Providers {
	return registrySource{reg: reg}
}

type registrySource struct{ reg *provider.Registry }

func (s registrySource) Get(name string) (Executor, error) {
	chain, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// Pipeline orchestrates a single prompt execution: provider call, brand
// extraction, classification, scoring, and persistence. A provider failure
// still produces a persisted execution row with status "error"; only broken
// plumbing (unknown provider, unreadable storage) surfaces as an error.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	providers  Providers
	classifier *classify.Classifier
	overlays   *OverlayCache
	merger     *catalog.Merger
}

// New wires a Pipeline from configuration, storage, and a provider source.
func New(cfg *config.Config, st store.Store, providers Providers) *Pipeline {
	rules := classify.NewRuleset(cfg.Classifier.GenericTerms, cfg.Classifier.KnownBrands)
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		providers:  providers,
		classifier: classify.New(rules),
		overlays:   NewOverlayCache(st, cfg.Overlay.CacheTTL()),
		merger:     catalog.NewMerger(st, MergePolicy(cfg.Merger)),
	}
}

// MergePolicy converts merger configuration into a catalog merge policy.
func MergePolicy(cfg config.MergerConfig) catalog.Policy {
	return catalog.Policy{
		Lookback:        time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		MinMentions:     cfg.MinMentions,
		ScoreGate:       cfg.ScoreGate,
		Retention:       time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		DedupeThreshold: cfg.DedupeThreshold,
	}
}

// Run loads the prompt by ID and executes it against the named provider.
func (p *Pipeline) Run(ctx context.Context, promptID uuid.UUID, providerName string) (*model.ProviderExecution, error) {
	prompt, err := p.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load prompt")
	}
	return p.RunPrompt(ctx, prompt, providerName)
}

// RunPrompt executes an already-loaded prompt against the named provider.
// The returned execution has already been persisted; a persistence failure is
// logged and the in-memory result is still returned so batch callers can
// report partial progress.
func (p *Pipeline) RunPrompt(ctx context.Context, prompt model.TrackedPrompt, providerName string) (*model.ProviderExecution, error) {
	chain, err := p.providers.Get(providerName)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve provider")
	}

	org, err := p.store.GetOrganization(ctx, prompt.OrgID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load organization")
	}
	overlay, err := p.overlays.Get(ctx, prompt.OrgID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load overlay")
	}
	entries, err := p.store.ListCatalog(ctx, prompt.OrgID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load catalog")
	}

	exec := &model.ProviderExecution{
		OrgID:    prompt.OrgID,
		PromptID: prompt.ID,
		Provider: providerName,
		Status:   model.StatusSuccess,
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout := p.cfg.Provider.Timeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	answer, err := chain.Execute(callCtx, prompt.Text)
	cancel()
	if err != nil {
		msg := err.Error()
		exec.Status = model.StatusError
		exec.ErrorMessage = &msg
		zap.L().Warn("pipeline: provider call failed",
			zap.String("provider", providerName),
			zap.String("prompt_id", prompt.ID.String()),
			zap.Error(err))
		p.persist(ctx, exec)
		return exec, nil
	}

	exec.Model = answer.Model
	exec.AnswerText = answer.Text
	exec.TokensIn = answer.TokensIn
	exec.TokensOut = answer.TokensOut

	p.analyze(exec, answer.Text, org, overlay, entries)
	p.persist(ctx, exec)

	zap.L().Info("pipeline: run complete",
		zap.String("provider", providerName),
		zap.String("model", exec.Model),
		zap.Bool("brand_present", exec.BrandPresent),
		zap.Int("competitors", exec.CompetitorCount),
		zap.Float64("est_cost_usd", p.cfg.Pricing.Estimate(exec.Model, exec.TokensIn, exec.TokensOut)))

	if p.cfg.Merger.AfterEachRun {
		p.mergeCatalog(ctx, prompt.OrgID)
	}
	return exec, nil
}

// analyze extracts brand candidates from the answer, classifies them against
// the organization's catalog and overlay, and scores visibility.
func (p *Pipeline) analyze(exec *model.ProviderExecution, answerText string, org model.Organization, overlay model.OrgOverlay, entries []model.CatalogEntry) {
	parsed := extract.Extract(answerText)
	if parsed.FromFallback() {
		zap.L().Debug("pipeline: embedded brand list missing, used pattern fallback",
			zap.String("reason", parsed.FallbackReason),
			zap.String("provider", exec.Provider))
	}
	exec.RawBrands = parsed.Names

	result := p.classifier.Classify(parsed.Names, entries, overlay, org)
	competitors := classify.FilterCompetitors(result.Competitors, p.cfg.Classifier.MinConfidence)

	exec.OrgBrands = result.OrgBrandNames()
	exec.Competitors = make([]string, 0, len(competitors))
	for _, m := range competitors {
		exec.Competitors = append(exec.Competitors, m.Name)
	}

	sc := score.Score(exec.OrgBrands, exec.Competitors, answerText)
	s := sc.Score
	exec.Score = &s
	exec.BrandPresent = sc.BrandPresent
	exec.BrandPosition = sc.BrandPosition
	exec.CompetitorCount = sc.CompetitorCount
}

// persist writes the execution row. Losing a row is degraded service, not a
// failed run; the caller still gets the in-memory result.
func (p *Pipeline) persist(ctx context.Context, exec *model.ProviderExecution) {
	if err := p.store.InsertExecution(ctx, exec); err != nil {
		zap.L().Error("pipeline: persist execution",
			zap.String("provider", exec.Provider),
			zap.String("prompt_id", exec.PromptID.String()),
			zap.Error(err))
	}
}

// Merge runs the catalog merger for the organization and returns the applied
// change set.
func (p *Pipeline) Merge(ctx context.Context, orgID uuid.UUID) (catalog.ChangeSet, error) {
	return p.merger.Run(ctx, orgID)
}

// InvalidateOverlay drops the cached overlay so the next run sees fresh rules.
func (p *Pipeline) InvalidateOverlay(orgID uuid.UUID) {
	p.overlays.Invalidate(orgID)
}

// mergeCatalog runs the catalog merger for the organization. Merge failures
// never fail the run that triggered them.
func (p *Pipeline) mergeCatalog(ctx context.Context, orgID uuid.UUID) {
	changes, err := p.merger.Run(ctx, orgID)
	if err != nil {
		zap.L().Error("pipeline: catalog merge",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		return
	}
	if !changes.Empty() {
		zap.L().Info("pipeline: catalog merged",
			zap.String("org_id", orgID.String()),
			zap.Int("upserts", len(changes.Upserts)),
			zap.Int("deletes", len(changes.DeleteIDs)))
	}
}

package provider

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brandlens/visibility/internal/config"
)

// Registry holds one Chain per configured provider.
type Registry struct {
	chains map[string]*Chain
}

// NewRegistry builds chains for every provider with a configured API key.
func NewRegistry(cfg *config.Config) *Registry {
	opts := ChainOptions{
		MaxAttempts:    cfg.Provider.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Provider.BackoffSecs) * time.Second,
		RatePerSecond:  cfg.Provider.RatePerSecond,
		RateBurst:      cfg.Provider.RateBurst,
	}

	chains := make(map[string]*Chain)
	if cfg.OpenAI.Enabled() {
		chains["openai"] = NewChain(NewOpenAI(cfg.OpenAI, cfg.Provider), opts)
	}
	if cfg.Perplexity.Enabled() {
		chains["perplexity"] = NewChain(NewPerplexity(cfg.Perplexity, cfg.Provider), opts)
	}
	if cfg.Gemini.Enabled() {
		chains["gemini"] = NewChain(NewGemini(cfg.Gemini, cfg.Provider), opts)
	}
	if cfg.Anthropic.Enabled() {
		chains["anthropic"] = NewChain(NewAnthropic(cfg.Anthropic, cfg.Provider), opts)
	}
	return &Registry{chains: chains}
}

// Get returns the chain for a provider name.
func (r *Registry) Get(name string) (*Chain, error) {
	chain, ok := r.chains[name]
	if !ok {
		return nil, eris.Errorf("provider %q is not configured", name)
	}
	return chain, nil
}

// Names lists the configured provider names, sorted for stable iteration.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package analysis

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// Resolver turns a business category into a routing decision: which knowledge
// base receives the document and under what thresholds. Mappings are loaded
// once per category and cached until Invalidate; negative lookups are cached
// too so a category with no mapping does not hammer the store.
type Resolver struct {
	store ports.MappingStore
	log   *slog.Logger

	mu    sync.Mutex
	cache map[domain.BusinessCategory]*domain.CategoryMapping
}

func NewResolver(store ports.MappingStore, log *slog.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log,
		cache: make(map[domain.BusinessCategory]*domain.CategoryMapping),
	}
}

// Resolve returns the routing decision for a category. A category without an
// active mapping falls back to the default knowledge base; when no default is
// configured either, the decision carries a nil target and default thresholds
// and the caller decides whether that skips or fails the document.
func (r *Resolver) Resolve(ctx context.Context, category domain.BusinessCategory) (domain.RoutingDecision, *domain.CategoryMapping, error) {
	mapping, err := r.lookup(ctx, category)
	if err != nil {
		return domain.DefaultRouting(), nil, err
	}
	if mapping == nil {
		r.log.Warn("no active knowledge base mapping", slog.String("category", string(category)))
		return domain.DefaultRouting(), nil, nil
	}

	decision := domain.RoutingDecision{
		Target:        &mapping.Target,
		MinConfidence: mapping.MinConfidence,
		AutoApprove:   mapping.AutoApprove,
	}
	if decision.MinConfidence <= 0 {
		decision.MinConfidence = domain.DefaultMinConfidence
	}
	if decision.AutoApprove <= 0 {
		decision.AutoApprove = domain.DefaultAutoApproveThreshold
	}
	return decision, mapping, nil
}

// TargetFor returns just the knowledge-base target for a category, nil when
// none is configured. Sweeps use this for KB-side deletions.
func (r *Resolver) TargetFor(ctx context.Context, category domain.BusinessCategory) (*domain.KnowledgeBaseTarget, error) {
	mapping, err := r.lookup(ctx, category)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, nil
	}
	target := mapping.Target
	return &target, nil
}

// Invalidate drops the cached mapping for one category, or the whole cache
// when category is empty. Call after mapping rows change.
func (r *Resolver) Invalidate(category domain.BusinessCategory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if category == "" {
		r.cache = make(map[domain.BusinessCategory]*domain.CategoryMapping)
		return
	}
	delete(r.cache, category)
}

func (r *Resolver) lookup(ctx context.Context, category domain.BusinessCategory) (*domain.CategoryMapping, error) {
	r.mu.Lock()
	cached, ok := r.cache[category]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	mapping, err := r.store.ActiveForCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		mapping, err = r.store.DefaultActive(ctx)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.cache[category] = mapping
	r.mu.Unlock()
	return mapping, nil
}

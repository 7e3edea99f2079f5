package pipeline

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/atlast/models"
)

// fallback resolves a run whose drafts all failed. It runs on a context detached
// from the (possibly expired) run deadline and cannot fail.
func (p *Pipeline) fallback(ctx context.Context, r *run) Result {
	detached := context.WithoutCancel(ctx)
	strategies := []strategy[Result]{
		{name: SourceCache, run: func(ctx context.Context) (Result, error) { return p.fromCache(ctx, r) }},
		{name: SourceHardcoded, run: func(context.Context) (Result, error) { return p.fromHardcoded(r), nil }},
	}
	res, _, err := firstSuccess(detached, strategies)
	if err != nil {
		return p.fromHardcoded(r)
	}
	if r.req.Exclusions != nil && res.Item.Location.Name != r.target.Name {
		if _, err := r.req.Exclusions.Exclude(detached, res.Item.Location.Name); err != nil {
			p.logger.Printf("session %s: record exclusion failed: %v", r.req.SessionID, err)
		}
	}
	return res
}

var errCacheMiss = errors.New("cache empty")

func (p *Pipeline) fromCache(ctx context.Context, r *run) (Result, error) {
	if p.deps.Cache == nil {
		return Result{}, errors.New("cache not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CacheTimeout)
	defer cancel()
	exclude := r.excluded
	if r.target.Name != "" {
		exclude = append(append([]string(nil), exclude...), r.target.Name)
	}
	item, ok, err := p.deps.Cache.ReadRandom(ctx, r.req.Difficulty, exclude)
	if err != nil {
		p.logger.Printf("session %s: cache read failed: %v", r.req.SessionID, err)
		return Result{}, err
	}
	if !ok {
		return Result{}, errCacheMiss
	}
	item.ProviderStats.Generator = SourceCache
	return Result{Item: item, Source: SourceCache}, nil
}

func (p *Pipeline) fromHardcoded(r *run) Result {
	item := hardcodedFor(r.req.Difficulty)
	item.ProviderStats = models.ProviderStats{Generator: SourceHardcoded, Critic: CriticSkipped, Accepted: true}
	return Result{Item: item, Source: SourceHardcoded}
}

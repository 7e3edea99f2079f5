// Package pipeline turns a difficulty tier into a finished riddle. It drafts with an
// ordered list of generators, asks an optional critic, and degrades to the
// persistent cache and then to a built-in item, so Run always yields a result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/internal/progress"
	"github.com/mohammad-safakhou/atlast/internal/targets"
	"github.com/mohammad-safakhou/atlast/internal/worker"
	"github.com/mohammad-safakhou/atlast/models"
	"github.com/mohammad-safakhou/atlast/provider"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Result sources.
const (
	SourceGenerated = "generated"
	SourceCache     = "cache"
	SourceHardcoded = "hardcoded"
)

// Critic provenance when no verdict was obtained.
const (
	CriticSkipped = "skipped"
	CriticErrored = "errored"
)

// Exclusions is the session's set of already served target names. Exclude
// reports false when name was already in the set.
type Exclusions interface {
	Excluded(ctx context.Context) ([]string, error)
	Exclude(ctx context.Context, name string) (bool, error)
}

// Selector picks the target for a run.
type Selector interface {
	Select(ctx context.Context, difficulty models.Difficulty, excluded []string) (targets.Selection, error)
}

// Cache is the persistent store of previously accepted items.
type Cache interface {
	ReadRandom(ctx context.Context, difficulty models.Difficulty, exclude []string) (models.ContentItem, bool, error)
	WriteAccepted(ctx context.Context, item models.ContentItem) error
}

// Submitter schedules fire-and-forget work.
type Submitter interface {
	Submit(name string, fn worker.TaskFunc) error
}

// Publisher receives milestone events.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, stage progress.Stage, message string)
}

type Request struct {
	SessionID  string
	Difficulty models.Difficulty
	Exclusions Exclusions // optional
}

// Outcome of one provider call.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTransientError Outcome = "transient_error"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeFatalError     Outcome = "fatal_error"
)

// ProviderAttempt records a single provider call within one run. It is not persisted.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Outcome  Outcome       `json:"outcome"`
	Latency  time.Duration `json:"latency"`
}

type Result struct {
	Item      models.ContentItem
	Attempts  []ProviderAttempt
	Source    string
	PoolReset bool
}

// AttemptsFor counts the calls made to one provider.
func (r Result) AttemptsFor(name string) int {
	n := 0
	for _, a := range r.Attempts {
		if a.Provider == name {
			n++
		}
	}
	return n
}

// Deps are the collaborators injected into a Pipeline. Only Selector is required.
type Deps struct {
	Selector   Selector
	Generators []provider.Generator
	Critics    []provider.Critic
	Cache      Cache
	Tasks      Submitter
	Progress   Publisher
}

type Pipeline struct {
	deps    Deps
	cfg     config.PipelineConfig
	logger  *log.Logger
	tracer  trace.Tracer
	metrics metrics
	now     func() time.Time
}

func New(deps Deps, cfg config.PipelineConfig, logger *log.Logger, meter otelmetric.Meter, tracer trace.Tracer) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("pipeline")
	}
	return &Pipeline{
		deps:    deps,
		cfg:     cfg.Normalize(),
		logger:  logger,
		tracer:  tracer,
		metrics: newMetrics(meter, logger),
		now:     time.Now,
	}
}

// run carries the mutable state of one invocation.
type run struct {
	req       Request
	start     time.Time
	target    models.Location
	excluded  []string
	attempts  []ProviderAttempt
	poolReset bool
}

// draft is generated text with the generator that produced it.
type draft struct {
	text      string
	generator string
}

// Run executes the pipeline. It always returns a servable result: generation
// failures and timeouts resolve through the cache and then the built-in items.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(attribute.String("session_id", req.SessionID), attribute.String("difficulty", string(req.Difficulty))))
	defer span.End()

	req.Difficulty = req.Difficulty.Normalize()
	r := &run{req: req, start: p.now()}
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.generate(runCtx, r)
	if err != nil {
		p.logger.Printf("session %s: generation failed, falling back: %v", req.SessionID, err)
		p.publish(ctx, req.SessionID, progress.StageFallback, "generation unavailable, using a stored riddle")
		res = p.fallback(ctx, r)
	}
	res.Attempts = r.attempts
	res.PoolReset = r.poolReset
	res.Item.ProviderStats.TotalTimeMs = p.now().Sub(r.start).Milliseconds()

	span.SetAttributes(attribute.String("source", res.Source), attribute.Bool("accepted", res.Item.ProviderStats.Accepted))
	p.record(ctx, res)
	p.publish(ctx, req.SessionID, progress.StageComplete, fmt.Sprintf("riddle ready (%s)", res.Source))
	return res
}

func (p *Pipeline) generate(ctx context.Context, r *run) (Result, error) {
	if err := p.selectTarget(ctx, r); err != nil {
		return Result{}, err
	}
	if len(p.deps.Generators) == 0 {
		return Result{}, errors.New("no generators configured")
	}

	maxIter := p.cfg.CritiqueMaxIterations
	var (
		last     draft
		verdict  provenance
		feedback string
		have     bool
	)
	for iter := 1; iter <= maxIter; iter++ {
		d, err := p.draft(ctx, r, feedback)
		if err != nil {
			if have {
				p.logger.Printf("session %s: redraft %d failed, keeping rejected draft: %v", r.req.SessionID, iter, err)
				break
			}
			return Result{}, err
		}
		last, have = d, true
		verdict = p.critique(ctx, r, d)
		if verdict.accepted || verdict.feedback == "" || iter == maxIter {
			break
		}
		feedback = verdict.feedback
		p.logger.Printf("session %s: critic rejected draft %d, redrafting", r.req.SessionID, iter)
	}

	item := models.ContentItem{
		Riddle:     last.text,
		Answer:     r.target.Name,
		Difficulty: string(r.req.Difficulty),
		Location:   r.target,
		ProviderStats: models.ProviderStats{
			Generator: last.generator,
			Critic:    verdict.critic,
			Accepted:  verdict.accepted,
		},
	}
	if item.ProviderStats.Accepted {
		p.writeBack(item)
	}
	return Result{Item: item, Source: SourceGenerated}, nil
}

func (p *Pipeline) selectTarget(ctx context.Context, r *run) error {
	var excluded []string
	if r.req.Exclusions != nil {
		names, err := r.req.Exclusions.Excluded(ctx)
		if err != nil {
			p.logger.Printf("session %s: read exclusions failed: %v", r.req.SessionID, err)
		}
		excluded = names
	}
	sel, err := p.deps.Selector.Select(ctx, r.req.Difficulty, excluded)
	if err != nil {
		return fmt.Errorf("select target: %w", err)
	}
	// Concurrent runs for a session can read the same set and pick the same
	// target; the run that loses the claim selects once more.
	if !p.claim(ctx, r, sel) {
		if names, err := r.req.Exclusions.Excluded(ctx); err == nil {
			excluded = names
		}
		excluded = append(append([]string(nil), excluded...), sel.Target.Name)
		again, err := p.deps.Selector.Select(ctx, r.req.Difficulty, excluded)
		if err == nil {
			p.logger.Printf("session %s: %s already taken, reselected %s", r.req.SessionID, sel.Target.Name, again.Target.Name)
			sel = again
			p.claim(ctx, r, sel)
		}
	}
	r.excluded = excluded
	r.target = sel.Target
	r.poolReset = sel.PoolReset
	msg := "target chosen"
	if sel.PoolReset {
		msg = "target chosen after pool reset"
	}
	p.publish(ctx, r.req.SessionID, progress.StageTargetChosen, msg)
	return nil
}

// claim records the selected target as served. It returns false only when a
// concurrent run already holds the name and no pool reset explains it.
func (p *Pipeline) claim(ctx context.Context, r *run, sel targets.Selection) bool {
	if r.req.Exclusions == nil {
		return true
	}
	added, err := r.req.Exclusions.Exclude(ctx, sel.Target.Name)
	if err != nil {
		p.logger.Printf("session %s: record exclusion failed: %v", r.req.SessionID, err)
		return true
	}
	return added || sel.PoolReset
}

// draft tries every generator in order, each with its own retry budget.
func (p *Pipeline) draft(ctx context.Context, r *run, feedback string) (draft, error) {
	prompt := provider.DraftPrompt(r.target.Name, feedback)
	strategies := make([]strategy[draft], 0, len(p.deps.Generators))
	for _, g := range p.deps.Generators {
		g := g
		strategies = append(strategies, strategy[draft]{
			name: g.Name(),
			run: func(ctx context.Context) (draft, error) {
				p.publish(ctx, r.req.SessionID, progress.StageDraftStarted, "drafting with "+g.Name())
				text, err := p.generateWithRetry(ctx, g, prompt, r)
				if err != nil {
					return draft{}, err
				}
				text, err = Repair(text, p.cfg.MinLength, p.cfg.MaxLength)
				if err != nil {
					return draft{}, err
				}
				p.publish(ctx, r.req.SessionID, progress.StageDraftReady, "draft ready from "+g.Name())
				return draft{text: text, generator: g.Name()}, nil
			},
		})
	}
	d, _, err := firstSuccess(ctx, strategies)
	return d, err
}

func (p *Pipeline) publish(ctx context.Context, sessionID string, stage progress.Stage, msg string) {
	if p.deps.Progress == nil {
		return
	}
	p.deps.Progress.Publish(ctx, sessionID, stage, msg)
}

func (p *Pipeline) writeBack(item models.ContentItem) {
	if p.deps.Cache == nil || p.deps.Tasks == nil {
		return
	}
	err := p.deps.Tasks.Submit("cache-write", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.CacheTimeout)
		defer cancel()
		return p.deps.Cache.WriteAccepted(ctx, item)
	})
	if err != nil {
		p.logger.Printf("cache write for %s not scheduled: %v", item.Answer, err)
	}
}

func (p *Pipeline) record(ctx context.Context, res Result) {
	if p.metrics.runs != nil {
		p.metrics.runs.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("source", res.Source),
			attribute.Bool("accepted", res.Item.ProviderStats.Accepted)))
	}
	if p.metrics.duration != nil {
		p.metrics.duration.Record(ctx, float64(res.Item.ProviderStats.TotalTimeMs),
			otelmetric.WithAttributes(attribute.String("source", res.Source)))
	}
}

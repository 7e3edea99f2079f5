// Package session is the per-session prefetch buffer. It keeps a queue of ready
// riddles near a target depth and schedules one refill job per pop or miss.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/internal/geo"
	"github.com/mohammad-safakhou/atlast/internal/pipeline"
	"github.com/mohammad-safakhou/atlast/models"
	"github.com/mohammad-safakhou/atlast/repository"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Producer generates one riddle for a session. It must always return a servable item.
type Producer interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Tiers reports which difficulties have a target pool.
type Tiers interface {
	Has(d models.Difficulty) bool
}

// Pop is the outcome of PopOrTrigger. Item is nil when Ready is false.
type Pop struct {
	Ready bool
	Item  *models.ContentItem
}

// AnswerResult is the outcome of one guess at the current riddle.
type AnswerResult struct {
	Correct  bool             `json:"correct"`
	Attempts int64            `json:"attempts"`
	Message  string           `json:"message"`
	Location *models.Location `json:"location,omitempty"`
	Hint     *geo.Hint        `json:"hint,omitempty"`
	Grade    *geo.Grade       `json:"grade,omitempty"`
}

type Manager struct {
	store     repository.KeyStore
	producer  Producer
	tasks     pipeline.Submitter
	tiers     Tiers
	gazetteer geo.Gazetteer
	cfg       config.BufferConfig
	logger    *log.Logger
	tracer    trace.Tracer
	pops      otelmetric.Int64Counter
	newID     func() string
	now       func() time.Time
}

type Option func(*Manager)

// WithGazetteer resolves wrong guesses to coordinates for distance hints.
func WithGazetteer(g geo.Gazetteer) Option { return func(m *Manager) { m.gazetteer = g } }

// WithTiers rejects sessions for difficulties without a pool.
func WithTiers(t Tiers) Option { return func(m *Manager) { m.tiers = t } }

func WithLogger(l *log.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// WithMeter registers buffer_pops_total.
func WithMeter(meter otelmetric.Meter) Option {
	return func(m *Manager) {
		if meter == nil {
			return
		}
		c, err := meter.Int64Counter("buffer_pops_total",
			otelmetric.WithDescription("Buffer pops by result (hit or miss)"))
		if err != nil {
			m.logger.Printf("warn: buffer_pops_total counter init failed: %v", err)
			return
		}
		m.pops = c
	}
}

func NewManager(store repository.KeyStore, producer Producer, tasks pipeline.Submitter, cfg config.BufferConfig, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		producer: producer,
		tasks:    tasks,
		cfg:      cfg.Normalize(),
		logger:   log.Default(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = tracenoop.NewTracerProvider().Tracer("session")
	}
	return m
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

// StartSession creates the session state and schedules the cold-start fill.
func (m *Manager) StartSession(ctx context.Context, difficulty models.Difficulty) (string, error) {
	d := difficulty.Normalize()
	if d == "" || (m.tiers != nil && !m.tiers.Has(d)) {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownDifficulty, difficulty)
	}
	id := m.newID()
	err := m.store.HSet(ctx, sessionKey(id), map[string]string{
		"difficulty": string(d),
		"created_at": strconv.FormatInt(m.now().Unix(), 10),
	})
	if err != nil {
		return "", unavailable("create session", err)
	}
	if err := m.touch(ctx, id); err != nil {
		return "", err
	}
	for i := 0; i < m.cfg.Size; i++ {
		m.schedule(id, d)
	}
	m.logger.Printf("session %s started (%s), filling %d", id, d, m.cfg.Size)
	return id, nil
}

// PopOrTrigger returns the oldest ready riddle, or Ready=false when the queue is
// empty. Either way exactly one refill job is scheduled; the call never waits on it.
func (m *Manager) PopOrTrigger(ctx context.Context, id string) (Pop, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PopOrTrigger", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	d, err := m.difficulty(ctx, id)
	if err != nil {
		return Pop{}, err
	}
	raw, ok, err := m.store.LPop(ctx, queueKey(id))
	if err != nil {
		return Pop{}, unavailable("pop queue", err)
	}
	defer m.schedule(id, d)
	if !ok {
		m.countPop(ctx, "miss")
		span.SetAttributes(attribute.Bool("ready", false))
		return Pop{}, m.touch(ctx, id)
	}

	var item models.ContentItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		// A corrupt entry is dropped; the scheduled refill replaces it.
		m.logger.Printf("session %s: dropping unreadable queue entry: %v", id, err)
		m.countPop(ctx, "miss")
		return Pop{}, m.touch(ctx, id)
	}
	if err := m.store.Set(ctx, answerKey(id), raw, m.cfg.SessionTTL); err != nil {
		m.restore(ctx, id, raw)
		return Pop{}, unavailable("set current answer", err)
	}
	if err := m.store.Set(ctx, attemptsKey(id), "0", m.cfg.SessionTTL); err != nil {
		m.restore(ctx, id, raw)
		return Pop{}, unavailable("reset attempts", err)
	}
	m.countPop(ctx, "hit")
	span.SetAttributes(attribute.Bool("ready", true), attribute.String("generator", item.ProviderStats.Generator))
	return Pop{Ready: true, Item: &item}, m.touch(ctx, id)
}

// restore puts a popped riddle back at the head of the queue when it could not
// be made current, so the next pop serves it.
func (m *Manager) restore(ctx context.Context, id, raw string) {
	if err := m.store.LPush(context.WithoutCancel(ctx), queueKey(id), raw); err != nil {
		m.logger.Printf("session %s: riddle lost, requeue failed: %v", id, err)
	}
}

// RecordAnswerAttempt checks a guess against the last served riddle. Wrong guesses
// carry a distance hint when the guessed place is known.
func (m *Manager) RecordAnswerAttempt(ctx context.Context, id, guess string) (AnswerResult, error) {
	if _, err := m.difficulty(ctx, id); err != nil {
		return AnswerResult{}, err
	}
	raw, ok, err := m.store.Get(ctx, answerKey(id))
	if err != nil {
		return AnswerResult{}, unavailable("read current answer", err)
	}
	if !ok {
		return AnswerResult{}, models.ErrNoActiveRiddle
	}
	var item models.ContentItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return AnswerResult{}, fmt.Errorf("decode current answer: %w", err)
	}
	n, err := m.store.Incr(ctx, attemptsKey(id))
	if err != nil {
		return AnswerResult{}, unavailable("count attempt", err)
	}
	if err := m.touch(ctx, id); err != nil {
		return AnswerResult{}, err
	}

	res := AnswerResult{Attempts: n}
	if strings.EqualFold(strings.TrimSpace(guess), strings.TrimSpace(item.Answer)) {
		loc := item.Location
		res.Correct = true
		res.Location = &loc
		res.Message = fmt.Sprintf("Correct! It's %s!", item.Answer)
		return res, nil
	}
	hint := geo.DistanceHint(m.gazetteer, guess, item.Location.Lat, item.Location.Lng)
	res.Hint = &hint
	if hint.Available {
		g := geo.GradeDistance(hint.DistanceKm)
		res.Grade = &g
	}
	res.Message = "Incorrect answer. Try again!"
	return res, nil
}

// QueueDepth reports how many riddles are ready for a session.
func (m *Manager) QueueDepth(ctx context.Context, id string) (int64, error) {
	n, err := m.store.LLen(ctx, queueKey(id))
	if err != nil {
		return 0, unavailable("queue depth", err)
	}
	return n, nil
}

func (m *Manager) difficulty(ctx context.Context, id string) (models.Difficulty, error) {
	if strings.TrimSpace(id) == "" {
		return "", models.ErrSessionNotFound
	}
	fields, err := m.store.HGetAll(ctx, sessionKey(id))
	if err != nil {
		return "", unavailable("load session", err)
	}
	d, ok := fields["difficulty"]
	if !ok || d == "" {
		return "", models.ErrSessionNotFound
	}
	return models.Difficulty(d), nil
}

// touch renews the TTL of every session key together.
func (m *Manager) touch(ctx context.Context, id string) error {
	if err := m.store.Expire(ctx, m.cfg.SessionTTL, allKeys(id)...); err != nil {
		return unavailable("renew session", err)
	}
	return nil
}

func (m *Manager) schedule(id string, d models.Difficulty) {
	err := m.tasks.Submit("refill:"+id, func(ctx context.Context) error {
		return m.fill(ctx, id, d)
	})
	if err != nil {
		m.logger.Printf("session %s: refill not scheduled: %v", id, err)
	}
}

// fill runs one generation job and appends its result. A session that expired
// meanwhile still receives the item; its queue expires with the rest of the keys.
func (m *Manager) fill(ctx context.Context, id string, d models.Difficulty) error {
	res := m.producer.Run(ctx, pipeline.Request{
		SessionID:  id,
		Difficulty: d,
		Exclusions: &exclusions{store: m.store, id: id, ttl: m.cfg.SessionTTL},
	})
	raw, err := json.Marshal(res.Item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	if err := m.store.RPush(ctx, queueKey(id), string(raw)); err != nil {
		return unavailable("push queue", err)
	}
	if err := m.store.Expire(ctx, m.cfg.SessionTTL, queueKey(id)); err != nil {
		return unavailable("renew queue", err)
	}
	return nil
}

func (m *Manager) countPop(ctx context.Context, result string) {
	if m.pops == nil {
		return
	}
	m.pops.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

// exclusions exposes the seen:{id} set to the pipeline.
type exclusions struct {
	store repository.KeyStore
	id    string
	ttl   time.Duration
}

func (e *exclusions) Excluded(ctx context.Context) ([]string, error) {
	return e.store.SMembers(ctx, seenKey(e.id))
}

func (e *exclusions) Exclude(ctx context.Context, name string) (bool, error) {
	n, err := e.store.SAdd(ctx, seenKey(e.id), name)
	if err != nil {
		return false, err
	}
	return n > 0, e.store.Expire(ctx, e.ttl, seenKey(e.id))
}

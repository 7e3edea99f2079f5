package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/atlast/models"
	"github.com/mohammad-safakhou/atlast/provider"
)

// Selection is the chosen target. PoolReset is set when every candidate was
// excluded and the full pool was used again.
type Selection struct {
	Target    models.Location
	PoolReset bool
	Proposed  bool
}

// Selector picks a target per difficulty, honoring a per-session exclusion set.
type Selector struct {
	pools           *Pools
	proposer        provider.Generator
	proposerTimeout time.Duration
	logger          *log.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Selector)

// WithProposer lets a text generator suggest novel targets before the static pools are used.
func WithProposer(g provider.Generator, timeout time.Duration) Option {
	return func(s *Selector) {
		s.proposer = g
		s.proposerTimeout = timeout
	}
}

func WithRand(r *rand.Rand) Option { return func(s *Selector) { s.rnd = r } }

func WithLogger(l *log.Logger) Option { return func(s *Selector) { s.logger = l } }

func NewSelector(pools *Pools, opts ...Option) *Selector {
	s := &Selector{
		pools:  pools,
		logger: log.Default(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	if s.proposerTimeout <= 0 {
		s.proposerTimeout = 4 * time.Second
	}
	return s
}

// Select returns a target for difficulty whose name is not in excluded, unless
// the filtered pool is empty, in which case the whole pool is used and PoolReset is set.
func (s *Selector) Select(ctx context.Context, difficulty models.Difficulty, excluded []string) (Selection, error) {
	difficulty = difficulty.Normalize()
	pool, ok := s.pools.Pool(difficulty)
	if !ok || len(pool) == 0 {
		return Selection{}, fmt.Errorf("%w: %s", models.ErrUnknownDifficulty, difficulty)
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	if s.proposer != nil {
		loc, err := s.propose(ctx, difficulty, excluded, skip)
		if err == nil {
			return Selection{Target: loc, Proposed: true}, nil
		}
		s.logger.Printf("proposer %s failed, using static pool: %v", s.proposer.Name(), err)
	}

	candidates := make([]models.Location, 0, len(pool))
	for _, loc := range pool {
		if _, hit := skip[strings.ToLower(loc.Name)]; !hit {
			candidates = append(candidates, loc)
		}
	}
	sel := Selection{}
	if len(candidates) == 0 {
		s.logger.Printf("pool exhausted for %s after %d exclusions, resetting", difficulty, len(excluded))
		candidates = pool
		sel.PoolReset = true
	}
	sel.Target = candidates[s.intn(len(candidates))]
	return sel, nil
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

type proposal struct {
	Name *string  `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

func (s *Selector) propose(ctx context.Context, d models.Difficulty, excluded []string, skip map[string]struct{}) (models.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, s.proposerTimeout)
	defer cancel()
	reply, err := s.proposer.Generate(ctx, provider.ProposePrompt(string(d), excluded))
	if err != nil {
		return models.Location{}, err
	}
	return ParseProposal(reply, skip)
}

// ParseProposal validates a proposed target. Surrounding prose and code fences are tolerated.
func ParseProposal(reply string, skip map[string]struct{}) (models.Location, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return models.Location{}, fmt.Errorf("no JSON object in proposal")
	}
	var p proposal
	if err := json.Unmarshal([]byte(reply[start:end+1]), &p); err != nil {
		return models.Location{}, fmt.Errorf("decode proposal: %w", err)
	}
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return models.Location{}, fmt.Errorf("proposal has no name")
	}
	if p.Lat == nil || p.Lng == nil {
		return models.Location{}, fmt.Errorf("proposal missing coordinates")
	}
	lat, lng := *p.Lat, *p.Lng
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return models.Location{}, fmt.Errorf("proposal latitude %v out of range", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return models.Location{}, fmt.Errorf("proposal longitude %v out of range", lng)
	}
	name := strings.TrimSpace(*p.Name)
	if _, hit := skip[strings.ToLower(name)]; hit {
		return models.Location{}, fmt.Errorf("proposal %q is excluded", name)
	}
	return models.Location{Name: name, Lat: lat, Lng: lng}, nil
}

package targets

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/internal/geo"
	"github.com/mohammad-safakhou/atlast/models"
)

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func testPools(t *testing.T) *Pools {
	t.Helper()
	doc, err := config.ParseTargets([]byte(`
version: 1
tiers:
  global_easy:
    - {name: Paris, lat: 48.8566, lng: 2.3522}
    - {name: Tokyo, lat: 35.6762, lng: 139.6503}
    - {name: Cairo, lat: 30.0444, lng: 31.2357}
  INDIA_EASY:
    - {name: Delhi, lat: 28.7041, lng: 77.1025}
`))
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	return NewPools(doc)
}

func TestSelectHonorsExclusions(t *testing.T) {
	s := NewSelector(testPools(t), WithRand(rand.New(rand.NewSource(1))))
	for i := 0; i < 50; i++ {
		sel, err := s.Select(context.Background(), "GLOBAL_EASY", []string{"paris", "TOKYO"})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if sel.Target.Name != "Cairo" || sel.PoolReset {
			t.Fatalf("unexpected selection %+v", sel)
		}
	}
}

func TestSelectResetsExhaustedPool(t *testing.T) {
	var buf bytes.Buffer
	s := NewSelector(testPools(t), WithLogger(log.New(&buf, "", 0)))
	sel, err := s.Select(context.Background(), "global_easy", []string{"Paris", "Tokyo", "Cairo"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.PoolReset {
		t.Fatalf("expected pool reset flag")
	}
	if !strings.Contains(buf.String(), "pool exhausted") {
		t.Fatalf("expected exhaustion to be logged, got %q", buf.String())
	}
}

func TestSelectUnknownDifficulty(t *testing.T) {
	s := NewSelector(testPools(t))
	if _, err := s.Select(context.Background(), "MARS_HARD", nil); !errors.Is(err, models.ErrUnknownDifficulty) {
		t.Fatalf("expected ErrUnknownDifficulty, got %v", err)
	}
}

func TestSelectUsesValidProposal(t *testing.T) {
	g := &fakeGenerator{reply: "Sure! ```json\n{\"name\": \"Lisbon\", \"lat\": 38.72, \"lng\": -9.14}\n```"}
	s := NewSelector(testPools(t), WithProposer(g, 0))
	sel, err := s.Select(context.Background(), "GLOBAL_EASY", nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Proposed || sel.Target.Name != "Lisbon" {
		t.Fatalf("expected proposed Lisbon, got %+v", sel)
	}
}

func TestSelectFallsBackOnBadProposal(t *testing.T) {
	replies := []string{
		`{"name": "", "lat": 1, "lng": 1}`,
		`{"name": "Atlantis", "lat": 91, "lng": 1}`,
		`{"name": "Atlantis", "lat": 1, "lng": -181}`,
		`{"name": "Paris", "lat": 48.8, "lng": 2.3}`,
		`{"name": "Atlantis"}`,
		`not json`,
	}
	for _, r := range replies {
		g := &fakeGenerator{reply: r}
		s := NewSelector(testPools(t), WithProposer(g, 0), WithLogger(log.New(&bytes.Buffer{}, "", 0)))
		sel, err := s.Select(context.Background(), "GLOBAL_EASY", []string{"Paris"})
		if err != nil {
			t.Fatalf("Select(%q): %v", r, err)
		}
		if sel.Proposed || sel.Target.Name == "Paris" {
			t.Fatalf("reply %q should fall back to pool, got %+v", r, sel)
		}
		if g.calls != 1 {
			t.Fatalf("proposer must not be retried, got %d calls", g.calls)
		}
	}

	g := &fakeGenerator{err: errors.New("down")}
	s := NewSelector(testPools(t), WithProposer(g, 0), WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	if sel, _ := s.Select(context.Background(), "INDIA_EASY", nil); sel.Target.Name != "Delhi" {
		t.Fatalf("expected pool fallback on proposer error")
	}
}

func TestPoolsLookup(t *testing.T) {
	p := testPools(t)
	var g geo.Gazetteer = p
	pt, ok := g.Lookup("  delhi ")
	if !ok || pt.Lat != 28.7041 {
		t.Fatalf("Lookup failed: %v %v", pt, ok)
	}
	if _, ok := p.Lookup("Atlantis"); ok {
		t.Fatalf("unexpected hit")
	}
	if names := p.Names(); len(names) != 4 || names[0] != "Cairo" {
		t.Fatalf("unexpected names %v", names)
	}
	if tiers := p.Tiers(); len(tiers) != 2 || tiers[0] != models.GlobalEasy {
		t.Fatalf("unexpected tiers %v", tiers)
	}
}

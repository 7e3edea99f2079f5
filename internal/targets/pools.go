// Package targets owns the difficulty scoped candidate pools and target selection.
package targets

import (
	"sort"
	"strings"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/internal/geo"
	"github.com/mohammad-safakhou/atlast/models"
)

// Pools is the immutable set of candidate targets per tier, loaded once at start.
type Pools struct {
	version int
	tiers   map[models.Difficulty][]models.Location
	byName  map[string]models.Location
}

func NewPools(doc *config.TargetDocument) *Pools {
	p := &Pools{
		version: doc.Version,
		tiers:   make(map[models.Difficulty][]models.Location, len(doc.Tiers)),
		byName:  make(map[string]models.Location),
	}
	for tier, recs := range doc.Tiers {
		d := models.Difficulty(tier).Normalize()
		locs := make([]models.Location, 0, len(recs))
		for _, r := range recs {
			loc := models.Location{Name: strings.TrimSpace(r.Name), Lat: r.Lat, Lng: r.Lng}
			locs = append(locs, loc)
			p.byName[strings.ToLower(loc.Name)] = loc
		}
		p.tiers[d] = locs
	}
	return p
}

func (p *Pools) Version() int { return p.version }

// Pool returns the candidates for a tier.
func (p *Pools) Pool(d models.Difficulty) ([]models.Location, bool) {
	locs, ok := p.tiers[d.Normalize()]
	return locs, ok
}

// Has reports whether d names a configured tier.
func (p *Pools) Has(d models.Difficulty) bool {
	_, ok := p.tiers[d.Normalize()]
	return ok
}

// Lookup resolves a name across every tier, case-insensitively. It satisfies geo.Gazetteer.
func (p *Pools) Lookup(name string) (geo.Point, bool) {
	loc, ok := p.Location(name)
	if !ok {
		return geo.Point{}, false
	}
	return geo.Point{Lat: loc.Lat, Lng: loc.Lng}, true
}

func (p *Pools) Location(name string) (models.Location, bool) {
	loc, ok := p.byName[strings.ToLower(strings.TrimSpace(name))]
	return loc, ok
}

// Names lists every known place, sorted.
func (p *Pools) Names() []string {
	out := make([]string, 0, len(p.byName))
	for _, loc := range p.byName {
		out = append(out, loc.Name)
	}
	sort.Strings(out)
	return out
}

// Tiers lists the configured tiers, sorted.
func (p *Pools) Tiers() []models.Difficulty {
	out := make([]models.Difficulty, 0, len(p.tiers))
	for d := range p.tiers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed targets.yaml
var defaultTargets []byte

// TargetDocument is the versioned mapping from difficulty tier to candidate places.
type TargetDocument struct {
	Version int                       `yaml:"version"`
	Tiers   map[string][]TargetRecord `yaml:"tiers"`
}

// TargetRecord is one named coordinate in a pool.
type TargetRecord struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

// LoadTargets reads the pool document at path, or the embedded default when path is empty.
func LoadTargets(path string) (*TargetDocument, error) {
	raw := defaultTargets
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read target pools: %w", err)
		}
		raw = b
	}
	return ParseTargets(raw)
}

// ParseTargets decodes and validates a pool document.
func ParseTargets(raw []byte) (*TargetDocument, error) {
	var doc TargetDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse target pools: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	normalized := make(map[string][]TargetRecord, len(doc.Tiers))
	for tier, recs := range doc.Tiers {
		normalized[strings.ToUpper(strings.TrimSpace(tier))] = recs
	}
	doc.Tiers = normalized
	return &doc, nil
}

// Validate rejects empty tiers and out-of-range coordinates.
func (d TargetDocument) Validate() error {
	if d.Version <= 0 {
		return fmt.Errorf("target pools: version must be positive")
	}
	if len(d.Tiers) == 0 {
		return fmt.Errorf("target pools: no tiers defined")
	}
	for tier, recs := range d.Tiers {
		if len(recs) == 0 {
			return fmt.Errorf("target pools: tier %s is empty", tier)
		}
		for i, r := range recs {
			if strings.TrimSpace(r.Name) == "" {
				return fmt.Errorf("target pools: %s[%d] has no name", tier, i)
			}
			if math.Abs(r.Lat) > 90 || math.Abs(r.Lng) > 180 {
				return fmt.Errorf("target pools: %s[%d] %s has invalid coordinates", tier, i, r.Name)
			}
		}
	}
	return nil
}

package models

import (
	"errors"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session id has no live state (never created or expired).
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveRiddle is returned when an answer is submitted before any riddle was served.
	ErrNoActiveRiddle = errors.New("no active riddle for session")
	// ErrUnknownDifficulty is returned for a tier that has no configured target pool.
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	// ErrStoreUnavailable wraps keyed store failures; callers map it to a service-unavailable condition.
	ErrStoreUnavailable = errors.New("keyed store unavailable")
)

// Difficulty identifies a target pool, e.g. GLOBAL_EASY.
type Difficulty string

const (
	IndiaEasy  Difficulty = "INDIA_EASY"
	IndiaHard  Difficulty = "INDIA_HARD"
	GlobalEasy Difficulty = "GLOBAL_EASY"
	GlobalHard Difficulty = "GLOBAL_HARD"
)

// Normalize upper-cases and trims a user supplied tier.
func (d Difficulty) Normalize() Difficulty {
	return Difficulty(strings.ToUpper(strings.TrimSpace(string(d))))
}

// Family returns the tier family prefix (INDIA, GLOBAL) used by hardcoded fallbacks.
func (d Difficulty) Family() string {
	s := string(d.Normalize())
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

// Location is a named place with coordinates.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// ProviderStats records who produced an item and whether the critic accepted it.
type ProviderStats struct {
	Generator   string `json:"generator"`
	Critic      string `json:"critic"`
	TotalTimeMs int64  `json:"total_time_ms"`
	Accepted    bool   `json:"accepted"`
}

// ContentItem is one ready-to-serve riddle. It is never mutated after the pipeline returns it.
type ContentItem struct {
	Riddle        string        `json:"riddle"`
	Answer        string        `json:"answer"`
	Difficulty    string        `json:"difficulty"`
	Location      Location      `json:"location"`
	ProviderStats ProviderStats `json:"provider_stats"`
}

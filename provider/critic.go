package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedVerdict is returned when a critic reply carries neither a PASS nor a FAIL prefix.
var ErrMalformedVerdict = errors.New("malformed critic verdict")

// Verdict is the outcome of a critique.
type Verdict struct {
	Pass     bool
	Feedback string
}

// Critic judges a drafted riddle for a target.
type Critic interface {
	Name() string
	Critique(ctx context.Context, target, riddle string) (Verdict, error)
}

// PromptCritic asks a Generator to answer with PASS or FAIL.
type PromptCritic struct {
	g Generator
}

func NewPromptCritic(g Generator) *PromptCritic { return &PromptCritic{g: g} }

func (c *PromptCritic) Name() string { return c.g.Name() }

func (c *PromptCritic) Critique(ctx context.Context, target, riddle string) (Verdict, error) {
	reply, err := c.g.Generate(ctx, CritiquePrompt(target, riddle))
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(reply)
}

// ParseVerdict reads a "PASS: reason" or "FAIL: issues" reply, case-insensitively.
func ParseVerdict(reply string) (Verdict, error) {
	s := strings.TrimSpace(reply)
	upper := strings.ToUpper(s)
	var v Verdict
	switch {
	case strings.HasPrefix(upper, "PASS"):
		v.Pass = true
	case strings.HasPrefix(upper, "FAIL"):
	default:
		return Verdict{}, fmt.Errorf("%w: %q", ErrMalformedVerdict, truncate(s, 80))
	}
	if i := strings.Index(s, ":"); i >= 0 {
		v.Feedback = strings.TrimSpace(s[i+1:])
	} else {
		v.Feedback = strings.TrimSpace(s[4:])
	}
	return v, nil
}

// DraftPrompt asks for a riddle about target. Non-empty feedback asks for a revision.
func DraftPrompt(target, feedback string) string {
	if feedback != "" {
		return fmt.Sprintf("You are a riddle master. The previous riddle for %s was rejected.\n"+
			"Feedback from QA: %s\n"+
			"Write a NEW, 3-sentence cryptic riddle for %s. Fix the issues mentioned. "+
			"Do not mention the city name explicitly.", target, feedback, target)
	}
	return fmt.Sprintf("You are a riddle master. Write a 3-sentence cryptic riddle for the city of %s.\n"+
		"Do not mention the city name explicitly. Focus on landmarks, history, or geography.", target)
}

// CritiquePrompt asks a critic to validate a riddle against its target.
func CritiquePrompt(target, riddle string) string {
	return fmt.Sprintf("You are a strict Geography Trivia QA Engineer.\n"+
		"Target City: %s\n"+
		"Proposed Riddle: %s\n\n"+
		"Analyze the riddle. Criteria:\n"+
		"1. Is it factually correct?\n"+
		"2. Is it clearly about %s and not applicable to many other cities?\n"+
		"3. Is it approximately 3 sentences?\n"+
		"4. Does it NOT contain the city name?\n\n"+
		"Respond with:\n"+
		"- 'PASS: [brief reason]' if all criteria are met\n"+
		"- 'FAIL: [specific issues]' if any criteria fail", target, riddle, target)
}

// ProposePrompt asks for a fresh target as JSON, avoiding the excluded names.
func ProposePrompt(tier string, excluded []string) string {
	avoid := "none"
	if len(excluded) > 0 {
		avoid = strings.Join(excluded, ", ")
	}
	return fmt.Sprintf("Suggest one real city for a geography guessing game at difficulty %s.\n"+
		"Do not suggest any of: %s.\n"+
		`Respond ONLY with JSON of the form {"name": "...", "lat": 0.0, "lng": 0.0}.`, tier, avoid)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Package relevance implements C6: the relevance scorer adapter that
// decides whether extracted citation content is worth saving.
package relevance

import "context"

// Scorer implements spec.md §4.5's scoring contract.
type Scorer interface {
	// Score rates text extracted from url (titled title) against patch's
	// topic and returns a score in [0,100], a save/deny recommendation,
	// and a short human-readable reason.
	Score(ctx context.Context, patch PatchContext, title, url, text string) (Result, error)
}

// PatchContext carries the subset of a patch a scorer needs to judge
// relevance, without depending on internal/core (keeps this package
// usable as a standalone collaborator boundary per SPEC_FULL.md §3.1).
type PatchContext struct {
	Title   string
	Aliases []string
	Tags    []string
}

// Result is the scorer's output per spec.md §4.5.
type Result struct {
	Score      int    `json:"score"`
	IsRelevant bool   `json:"isRelevant"`
	Reason     string `json:"reason"`
}

// RelevanceThreshold is the default save/deny cutoff, overridable
// process-wide via config.Processor.RelevanceThresh; there is no
// per-patch threshold.
const RelevanceThreshold = 60

// MaxInputBytes bounds the text sent to the scorer (spec.md §4.5).
const MaxInputBytes = 12 * 1024

// Decide applies the threshold rule: score >= threshold AND isRelevant => save.
func (r Result) Decide(threshold int) bool {
	return r.Score >= threshold && r.IsRelevant
}

package episode

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexusmem/memengine/internal/types"
)

// HeuristicReward is the default RewardCalculator: it derives a
// reward in [-1, 1] from the episode's outcome kind, penalized by the
// fraction of steps that recorded an error, per spec.md §3's
// `reward ∈ [-1,1]` bound and §4.6's "reward calculation" fan-out
// stage. Domains wanting a learned or task-specific reward signal
// supply their own RewardCalculator instead.
type HeuristicReward struct{}

// Calculate implements RewardCalculator.
func (HeuristicReward) Calculate(_ context.Context, e *types.Episode) (float64, error) {
	var base float64
	if e.Outcome != nil {
		switch e.Outcome.Kind {
		case types.OutcomeSuccess:
			base = 0.85
		case types.OutcomePartialSuccess:
			base = 0.3
		case types.OutcomeFailure:
			base = -0.5
		case types.OutcomeError:
			base = -1.0
		}
	}

	if len(e.Steps) == 0 {
		return clampReward(base), nil
	}
	var errored int
	for _, s := range e.Steps {
		if s.Error != "" {
			errored++
		}
	}
	errorRatio := float64(errored) / float64(len(e.Steps))
	penaltyWeight := 0.4
	if w, ok := metadataFloat(e, "$.reward_overrides.error_penalty_weight"); ok {
		penaltyWeight = w
	}
	return clampReward(base - errorRatio*penaltyWeight), nil
}

func clampReward(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// TemplateReflection is the default ReflectionGenerator: a short,
// templated account of what happened, naming the
// tools used and the outcome.
type TemplateReflection struct{}

// Generate implements ReflectionGenerator.
func (TemplateReflection) Generate(_ context.Context, e *types.Episode) (string, error) {
	tools := stepTools(e)
	outcome := "unknown"
	if e.Outcome != nil {
		outcome = string(e.Outcome.Kind)
	}
	if len(tools) == 0 {
		return fmt.Sprintf("Attempted %q with no recorded steps; outcome %s.", e.TaskDescription, outcome), nil
	}
	return fmt.Sprintf("Attempted %q using %s; outcome %s after %d step(s).",
		e.TaskDescription, strings.Join(tools, " -> "), outcome, len(e.Steps)), nil
}

// TemplateSummarizer is the default Summarizer: a compact semantic
// summary combining domain, task type, and the distinct tools
// exercised, meant as a cheap retrieval signal rather than prose.
type TemplateSummarizer struct{}

// Summarize implements Summarizer.
func (TemplateSummarizer) Summarize(_ context.Context, e *types.Episode) (string, error) {
	tools := distinctStepTools(e)
	return fmt.Sprintf("[%s/%s] %s (tools: %s)", e.Context.Domain, e.TaskType, e.TaskDescription, strings.Join(tools, ", ")), nil
}

func stepTools(e *types.Episode) []string {
	out := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Tool
	}
	return out
}

func distinctStepTools(e *types.Episode) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range e.Steps {
		if !seen[s.Tool] {
			seen[s.Tool] = true
			out = append(out, s.Tool)
		}
	}
	return out
}

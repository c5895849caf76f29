// Package validation implements the bounded input checks from spec.md
// §4.1: every boundary-crossing write is validated before it reaches
// the episode lifecycle or the primary store.
package validation

import (
	"regexp"
	"strings"

	"github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/internal/config"
	"github.com/nexusmem/memengine/internal/types"
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Limits is the subset of config.LimitsConfig the validator needs,
// duplicated here so the package has no import-time dependency on a
// fully-loaded Config (tests can build one inline).
type Limits struct {
	MaxDescription int
	MaxSteps       int
	MaxArtifact    int
	MaxObservation int
}

// FromConfig adapts config.LimitsConfig into a Limits value.
func FromConfig(c config.LimitsConfig) Limits {
	return Limits{
		MaxDescription: c.MaxDescription,
		MaxSteps:       c.MaxSteps,
		MaxArtifact:    c.MaxArtifact,
		MaxObservation: c.MaxObservation,
	}
}

// DefaultLimits mirrors spec.md §3's defaults, for callers that build a
// Validator without a loaded Config (e.g. tests).
func DefaultLimits() Limits {
	return Limits{
		MaxDescription: types.MaxTaskDescriptionBytes,
		MaxSteps:       types.MaxSteps,
		MaxArtifact:    types.MaxArtifactBytes,
		MaxObservation: types.MaxObservationBytes,
	}
}

// Validator checks episode/step/tag inputs against configured bounds.
type Validator struct {
	limits Limits
}

// New creates a Validator bound to limits.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// TaskDescription validates a new episode's task description.
func (v *Validator) TaskDescription(desc string) error {
	if len(desc) == 0 {
		return errors.InvalidInput("task_description", "must not be empty")
	}
	if len(desc) > v.limits.MaxDescription {
		return errors.InvalidInput("task_description", "exceeds max length").
			WithDetails("length", len(desc)).
			WithDetails("max", v.limits.MaxDescription)
	}
	return nil
}

// TaskType validates a task type enum value.
func (v *Validator) TaskType(t types.TaskType) error {
	if !types.ValidTaskType(t) {
		return errors.InvalidInput("task_type", "unknown enum value")
	}
	return nil
}

// Context validates an episode's context.
func (v *Validator) Context(ctx types.Context) error {
	if strings.TrimSpace(ctx.Domain) == "" {
		return errors.InvalidInput("context.domain", "must not be empty")
	}
	if !types.ValidComplexity(ctx.Complexity) {
		return errors.InvalidInput("context.complexity", "unknown enum value")
	}
	return nil
}

// StepCount validates that appending one more step would not exceed
// the configured maximum.
func (v *Validator) StepCount(current int) error {
	if current >= v.limits.MaxSteps {
		return errors.QuotaExceeded("steps", current+1, v.limits.MaxSteps)
	}
	return nil
}

// Step validates one ExecutionStep's required fields and size bounds.
func (v *Validator) Step(s types.ExecutionStep) error {
	if strings.TrimSpace(s.Tool) == "" {
		return errors.InvalidInput("step.tool", "must not be empty")
	}
	if strings.TrimSpace(s.Action) == "" {
		return errors.InvalidInput("step.action", "must not be empty")
	}
	if len(s.Observation) > v.limits.MaxObservation {
		return errors.InvalidInput("step.observation", "exceeds max length").
			WithDetails("length", len(s.Observation)).
			WithDetails("max", v.limits.MaxObservation)
	}
	if len(s.Artifact) > v.limits.MaxArtifact {
		return errors.InvalidInput("step.artifact", "exceeds max size").
			WithDetails("size", len(s.Artifact)).
			WithDetails("max", v.limits.MaxArtifact)
	}
	return nil
}

// Tag normalizes and validates a single tag, per spec.md §4.12: trim,
// lowercase, 2-100 chars, [a-z0-9_-] only.
func Tag(raw string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if len(t) < types.MinTagLen || len(t) > types.MaxTagLen {
		return "", errors.InvalidInput("tag", "length must be between 2 and 100 characters")
	}
	if !tagPattern.MatchString(t) {
		return "", errors.InvalidInput("tag", "must match [a-z0-9_-]+")
	}
	return t, nil
}

// Tags normalizes and validates a set of tags, stopping at the first
// invalid entry.
func Tags(raw []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		t, err := Tag(r)
		if err != nil {
			return nil, err
		}
		out[t] = struct{}{}
	}
	return out, nil
}

// Embedding validates an embedding vector's dimension against the
// supported set from spec.md §3.
func Embedding(vec []float32) error {
	if !types.SupportedEmbeddingDims[len(vec)] {
		return errors.InvalidInput("embedding", "unsupported dimension")
	}
	return nil
}

// RelationshipEndpoints validates that a relationship does not
// self-loop, per spec.md §3's `from ≠ to` invariant.
func RelationshipEndpoints(from, to string) error {
	if from == to {
		return errors.InvalidInput("relationship", "from and to must differ")
	}
	return nil
}

// RelationshipType validates a relationship type enum value.
func RelationshipType(t types.RelationshipType) error {
	if !types.ValidRelationshipType(t) {
		return errors.InvalidInput("relationship.type", "unknown enum value")
	}
	return nil
}

// Strength validates a relationship strength or score is within [0,1].
func Strength(s float64) error {
	if s < 0 || s > 1 {
		return errors.InvalidInput("strength", "must be in [0,1]")
	}
	return nil
}

// Package types holds the core data model of the episodic memory engine:
// episodes, steps, patterns, heuristics, relationships and tag metadata.
package types

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// TaskType enumerates the kind of task an episode records.
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
	TaskDebugging      TaskType = "debugging"
	TaskRefactoring    TaskType = "refactoring"
	TaskAnalysis       TaskType = "analysis"
	TaskTesting        TaskType = "testing"
	TaskOther          TaskType = "other"
)

// ValidTaskType reports whether t is a known enum variant.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskCodeGeneration, TaskDebugging, TaskRefactoring, TaskAnalysis, TaskTesting, TaskOther:
		return true
	default:
		return false
	}
}

// Complexity enumerates the estimated complexity of a task's context.
type Complexity string

const (
	ComplexityTrivial     Complexity = "Trivial"
	ComplexityModerate    Complexity = "Moderate"
	ComplexityComplex     Complexity = "Complex"
	ComplexityVeryComplex Complexity = "VeryComplex"
)

// ValidComplexity reports whether c is a known enum variant.
func ValidComplexity(c Complexity) bool {
	switch c {
	case ComplexityTrivial, ComplexityModerate, ComplexityComplex, ComplexityVeryComplex:
		return true
	default:
		return false
	}
}

// Status is the episode lifecycle state.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusAbandoned  Status = "Abandoned"
)

// OutcomeKind enumerates the terminal outcome of an episode.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "Success"
	OutcomePartialSuccess OutcomeKind = "PartialSuccess"
	OutcomeFailure        OutcomeKind = "Failure"
	OutcomeError          OutcomeKind = "Error"
)

// Outcome carries the terminal result of an episode. Text is only
// meaningful when Kind == OutcomeError.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// Context captures the situational metadata a task was attempted in.
type Context struct {
	Domain     string            `json:"domain"`
	Complexity Complexity        `json:"complexity"`
	Language   string            `json:"language,omitempty"`
	Framework  string            `json:"framework,omitempty"`
	Tags       map[string]struct{} `json:"-"`
}

// Supported embedding dimensions. See spec.md §3 Episode.embedding.
var SupportedEmbeddingDims = map[int]bool{
	384:  true,
	768:  true,
	1024: true,
	1536: true,
	3072: true,
}

// Size bounds enforced at construction time, per spec.md §3 and §4.1.
const (
	MaxTaskDescriptionBytes = 10_000
	MaxSteps                = 1000
	MaxArtifactBytes        = 1_000_000
	MaxObservationBytes     = 10_000
	MinTagLen               = 2
	MaxTagLen               = 100
)

// Episode is one agent task attempt and the unit of learning.
//
// Ownership: exclusively owned by the engine between Start and
// Complete; shared-read via cache/primary afterwards.
type Episode struct {
	ID              uuid.UUID
	TaskDescription string
	TaskType        TaskType
	Context         Context
	Steps           []ExecutionStep
	Status          Status
	StartTime       time.Time
	EndTime         *time.Time
	Outcome         *Outcome
	Reward          *float64
	Reflection      string
	SemanticSummary string
	Embedding       []float32
	Tags            map[string]struct{}
	Metadata        map[string]interface{}
}

// ExecutionStep is a single tool invocation inside an episode.
type ExecutionStep struct {
	Ordinal     int
	Tool        string
	Action      string
	Parameters  map[string]interface{}
	Result      map[string]interface{}
	Observation string
	Error       string
	Timestamp   time.Time
	Duration    time.Duration
	Artifact    []byte
}

// IsComplete reports whether the episode has reached a terminal state
// with all completion-time fields populated, per the invariant in
// spec.md §3: "status = Completed ↔ end_time∧outcome∧reward all set".
func (e *Episode) IsComplete() bool {
	return e.Status == StatusCompleted && e.EndTime != nil && e.Outcome != nil && e.Reward != nil
}

// NormalizedTags returns the episode's tag set as a sorted slice.
func (e *Episode) NormalizedTags() []string {
	out := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

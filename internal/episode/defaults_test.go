package episode

import (
	"context"
	"testing"

	"github.com/nexusmem/memengine/internal/types"
)

func TestHeuristicReward_SuccessVsFailure(t *testing.T) {
	var calc HeuristicReward
	success := &types.Episode{Outcome: &types.Outcome{Kind: types.OutcomeSuccess}}
	failure := &types.Episode{Outcome: &types.Outcome{Kind: types.OutcomeFailure}}

	sr, _ := calc.Calculate(context.Background(), success)
	fr, _ := calc.Calculate(context.Background(), failure)
	if sr <= fr {
		t.Errorf("expected success reward (%v) > failure reward (%v)", sr, fr)
	}
	if sr < -1 || sr > 1 || fr < -1 || fr > 1 {
		t.Errorf("reward out of [-1,1] bound: sr=%v fr=%v", sr, fr)
	}
}

func TestHeuristicReward_PenalizesErroredSteps(t *testing.T) {
	var calc HeuristicReward
	clean := &types.Episode{
		Outcome: &types.Outcome{Kind: types.OutcomeSuccess},
		Steps:   []types.ExecutionStep{{Tool: "grep"}, {Tool: "edit"}},
	}
	errored := &types.Episode{
		Outcome: &types.Outcome{Kind: types.OutcomeSuccess},
		Steps:   []types.ExecutionStep{{Tool: "grep", Error: "boom"}, {Tool: "edit"}},
	}

	cr, _ := calc.Calculate(context.Background(), clean)
	er, _ := calc.Calculate(context.Background(), errored)
	if er >= cr {
		t.Errorf("expected errored-steps reward (%v) < clean reward (%v)", er, cr)
	}
}

func TestHeuristicReward_HonorsMetadataOverride(t *testing.T) {
	var calc HeuristicReward
	e := &types.Episode{
		Outcome: &types.Outcome{Kind: types.OutcomeSuccess},
		Steps:   []types.ExecutionStep{{Tool: "grep", Error: "boom"}, {Tool: "edit"}},
		Metadata: map[string]interface{}{
			"reward_overrides": map[string]interface{}{"error_penalty_weight": 0.0},
		},
	}
	r, err := calc.Calculate(context.Background(), e)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if r != 0.85 {
		t.Errorf("reward = %v, want 0.85 (override should zero the error penalty)", r)
	}
}

func TestTemplateReflection_MentionsOutcomeAndTools(t *testing.T) {
	var gen TemplateReflection
	e := &types.Episode{
		TaskDescription: "fix the bug",
		Outcome:         &types.Outcome{Kind: types.OutcomeSuccess},
		Steps:           []types.ExecutionStep{{Tool: "grep"}, {Tool: "edit"}},
	}
	text, err := gen.Generate(context.Background(), e)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text == "" {
		t.Fatal("expected non-empty reflection")
	}
}

func TestTemplateSummarizer_IncludesDomainAndTaskType(t *testing.T) {
	var s TemplateSummarizer
	e := &types.Episode{
		TaskDescription: "fix the bug",
		TaskType:        types.TaskDebugging,
		Context:         types.Context{Domain: "web-api"},
		Steps:           []types.ExecutionStep{{Tool: "grep"}, {Tool: "grep"}, {Tool: "edit"}},
	}
	summary, err := s.Summarize(context.Background(), e)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
}

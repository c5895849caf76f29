// Package heuristic implements the heuristic learner from spec.md
// §4.10: patterns that have accumulated enough support and a high
// enough success rate are promoted into an if-then rule the engine
// can recommend directly, without re-scanning tool sequences.
package heuristic

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

// MinPromotion is the minimum occurrence count a pattern must reach
// before it is eligible for promotion, per spec.md §4.10.
const MinPromotion = 10

// SuccessThreshold is the minimum success rate a pattern must reach
// before it is eligible for promotion, per spec.md §4.10.
const SuccessThreshold = 0.7

// Learner promotes sufficiently supported, sufficiently successful
// patterns into heuristics. Implements pattern.Hook.
type Learner struct {
	store            store.HeuristicStore
	log              *logging.Logger
	minPromotion     int
	successThreshold float64
}

// New creates a Learner writing promoted heuristics to s.
func New(s store.HeuristicStore, log *logging.Logger) *Learner {
	return &Learner{
		store:            s,
		log:              log,
		minPromotion:     MinPromotion,
		successThreshold: SuccessThreshold,
	}
}

// OnPatternUpserted evaluates p for promotion, upserting a heuristic
// when p meets the occurrence-count and success-rate thresholds.
func (l *Learner) OnPatternUpserted(ctx context.Context, p *types.Pattern) {
	if p.OccurrenceCount < l.minPromotion || p.SuccessRate < l.successThreshold {
		return
	}

	h := &types.Heuristic{
		ID:           HeuristicID(p),
		Condition:    Condition(p),
		Action:       Action(p),
		Confidence:   Confidence(p.SuccessRate, p.OccurrenceCount),
		SupportCount: p.OccurrenceCount,
		Domain:       p.Domain,
		TaskType:      p.TaskType,
	}
	if err := l.store.UpsertHeuristic(ctx, h); err != nil && l.log != nil {
		l.log.WithError(err).WithField("heuristic_id", h.ID).Warn("heuristic upsert failed")
	}
}

// Condition derives the heuristic's applicability condition from the
// pattern's domain, task type and context signature:
// "domain=X task_type=Y context=Z".
func Condition(p *types.Pattern) string {
	return fmt.Sprintf("domain=%s task_type=%s context=%s", p.Domain, p.TaskType, p.ContextSignature)
}

// Action encodes the recommended first tool of the pattern's proven
// sequence, since that is the decision point a heuristic can actually
// shortcut.
func Action(p *types.Pattern) string {
	if len(p.ToolSequence) == 0 {
		return ""
	}
	return fmt.Sprintf("prefer_tool=%s then=%s", p.ToolSequence[0], strings.Join(p.ToolSequence, ">"))
}

// Confidence weights the raw success rate by a saturating function of
// occurrence count, mirroring pattern.Effectiveness: a rule seen only
// at the promotion floor is less trustworthy than one seen often.
func Confidence(successRate float64, occurrenceCount int) float64 {
	if occurrenceCount <= 0 {
		return 0
	}
	saturation := 1 - 1/(1+math.Log(1+float64(occurrenceCount)))
	return successRate * saturation
}

// HeuristicID derives a stable identifier from the pattern it was
// promoted from, so re-promotion upserts rather than duplicates.
func HeuristicID(p *types.Pattern) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("heuristic"))
	h.Write([]byte{0})
	h.Write([]byte(p.ID))
	return hex.EncodeToString(h.Sum(nil))[:24]
}

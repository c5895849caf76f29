// Package pattern implements the pattern extractor from spec.md §4.9:
// episodes are bucketed by context signature, frequent contiguous tool
// subsequences are mined once a bucket reaches the minimum support
// threshold, and the resulting patterns are upserted deduplicated by
// (task_type, domain, tool_sequence). Extraction runs asynchronously
// off the episode-completion fan-out, coalesced per bucket via
// single-flight so a burst of completions in the same context does not
// re-mine the same bucket concurrently.
package pattern

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/nexusmem/memengine/infrastructure/logging"
	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

// MinSupport is the minimum number of bucket episodes a tool
// subsequence must occur in to be mined as a pattern, per spec.md
// §4.9.
const MinSupport = 3

// MaxSequenceLen bounds how long a mined contiguous subsequence can
// grow, keeping the mining step linear in practice.
const MaxSequenceLen = 5

// MaxBucketSize bounds how many recent episodes a context-signature
// bucket retains, so mining stays a sliding-window operation instead
// of growing without bound.
const MaxBucketSize = 200

// ContextSignature derives the bucketing key spec.md §4.9 mines
// patterns within: domain, task type, and complexity, which together
// approximate "the situation this tool sequence was used in".
func ContextSignature(taskType types.TaskType, ctx types.Context) string {
	return fmt.Sprintf("%s|%s|%s", ctx.Domain, taskType, ctx.Complexity)
}

// Hook is notified whenever a pattern is freshly upserted, so the
// heuristic learner can evaluate it for promotion without re-querying
// the pattern store.
type Hook interface {
	OnPatternUpserted(ctx context.Context, p *types.Pattern)
}

// Extractor mines frequent tool subsequences from completed episodes.
type Extractor struct {
	store      store.PatternStore
	log        *logging.Logger
	minSupport int
	hooks      []Hook

	mu      sync.Mutex
	buckets map[string][]*types.Episode
	group   singleflight.Group
}

// New creates an Extractor writing mined patterns to s.
func New(s store.PatternStore, log *logging.Logger, hooks ...Hook) *Extractor {
	return &Extractor{
		store:      s,
		log:        log,
		minSupport: MinSupport,
		hooks:      hooks,
		buckets:    make(map[string][]*types.Episode),
	}
}

// OnEpisodeCompleted implements episode.LearningHook: it files e into
// its context-signature bucket and, if the bucket has reached the
// minimum support threshold, triggers (coalesced) extraction.
func (x *Extractor) OnEpisodeCompleted(ctx context.Context, e *types.Episode) {
	sig := ContextSignature(e.TaskType, e.Context)

	x.mu.Lock()
	bucket := append(x.buckets[sig], e)
	if len(bucket) > MaxBucketSize {
		bucket = bucket[len(bucket)-MaxBucketSize:]
	}
	x.buckets[sig] = bucket
	snapshot := append([]*types.Episode(nil), bucket...)
	x.mu.Unlock()

	if len(snapshot) < x.minSupport {
		return
	}

	_, _, _ = x.group.Do(sig, func() (interface{}, error) {
		x.extract(ctx, sig, snapshot)
		return nil, nil
	})
}

type candidate struct {
	sequence    []string
	occurrences int
	successes   int
}

// extract mines frequent contiguous tool subsequences from bucket and
// upserts every one meeting minSupport.
func (x *Extractor) extract(ctx context.Context, sig string, bucket []*types.Episode) {
	if len(bucket) == 0 {
		return
	}
	domain := bucket[0].Context.Domain
	taskType := bucket[0].TaskType

	counts := make(map[string]*candidate)
	for _, e := range bucket {
		tools := toolSequence(e)
		success := e.Outcome != nil && e.Outcome.Kind == types.OutcomeSuccess

		seen := make(map[string]bool)
		for length := 2; length <= MaxSequenceLen && length <= len(tools); length++ {
			for start := 0; start+length <= len(tools); start++ {
				seq := tools[start : start+length]
				key := strings.Join(seq, ">")
				if seen[key] {
					continue
				}
				seen[key] = true

				c, ok := counts[key]
				if !ok {
					c = &candidate{sequence: append([]string(nil), seq...)}
					counts[key] = c
				}
				c.occurrences++
				if success {
					c.successes++
				}
			}
		}
	}

	for key, c := range counts {
		if c.occurrences < x.minSupport {
			continue
		}
		p := toPattern(domain, taskType, sig, c)
		if err := x.store.UpsertPattern(ctx, p); err != nil {
			if x.log != nil {
				x.log.WithError(err).WithField("pattern_key", key).Warn("pattern upsert failed")
			}
			continue
		}
		for _, h := range x.hooks {
			h.OnPatternUpserted(ctx, p)
		}
	}
}

func toolSequence(e *types.Episode) []string {
	steps := append([]types.ExecutionStep(nil), e.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ordinal < steps[j].Ordinal })
	tools := make([]string, len(steps))
	for i, s := range steps {
		tools[i] = s.Tool
	}
	return tools
}

func toPattern(domain string, taskType types.TaskType, signature string, c *candidate) *types.Pattern {
	successRate := 0.0
	if c.occurrences > 0 {
		successRate = float64(c.successes) / float64(c.occurrences)
	}
	effectiveness := Effectiveness(successRate, c.occurrences)

	return &types.Pattern{
		ID:               PatternID(taskType, domain, c.sequence),
		ToolSequence:     c.sequence,
		TaskType:         taskType,
		Domain:           domain,
		ContextSignature: signature,
		OccurrenceCount:  c.occurrences,
		SuccessRate:      successRate,
		Effectiveness:    effectiveness,
	}
}

// Effectiveness combines success rate with a saturating function of
// occurrence count, per spec.md §4.9: frequent, reliable sequences
// score highest, but a single lucky run never outscores a
// well-established one. The result stays in [0,1] since the
// saturating term is itself in [0,1).
func Effectiveness(successRate float64, occurrences int) float64 {
	if occurrences <= 0 {
		return 0
	}
	saturation := 1 - 1/(1+math.Log(1+float64(occurrences)))
	return successRate * saturation
}

// PatternID derives a stable identifier from the dedup key spec.md
// §4.9 names: (task_type, domain, tool_sequence).
func PatternID(taskType types.TaskType, domain string, sequence []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(string(taskType)))
	h.Write([]byte{0})
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sequence, ">")))
	return hex.EncodeToString(h.Sum(nil))[:24]
}

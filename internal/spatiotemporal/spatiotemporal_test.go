package spatiotemporal

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/types"
)

func TestIndex_InsertAndTopClusters(t *testing.T) {
	idx := New()
	now := time.Now()

	idx.Insert(Entry{EpisodeID: uuid.New(), Domain: "web-api", TaskType: types.TaskDebugging, Time: now})
	idx.Insert(Entry{EpisodeID: uuid.New(), Domain: "web-api", TaskType: types.TaskDebugging, Time: now.Add(-48 * time.Hour)})
	idx.Insert(Entry{EpisodeID: uuid.New(), Domain: "other-domain", TaskType: types.TaskDebugging, Time: now})

	clusters := idx.TopClusters("web-api", types.TaskDebugging, 5)
	total := 0
	for _, c := range clusters {
		total += len(c)
	}
	if total != 2 {
		t.Errorf("total entries across clusters = %d, want 2", total)
	}
}

func TestIndex_Remove(t *testing.T) {
	idx := New()
	id := uuid.New()
	idx.Insert(Entry{EpisodeID: id, Domain: "web-api", TaskType: types.TaskDebugging, Time: time.Now()})
	idx.Remove(id)

	clusters := idx.TopClusters("web-api", types.TaskDebugging, 5)
	for _, c := range clusters {
		for _, e := range c {
			if e.EpisodeID == id {
				t.Fatal("expected removed entry to be absent")
			}
		}
	}
}

func TestIndex_MaxClustersBound(t *testing.T) {
	idx := New()
	now := time.Now()
	for i := 0; i < 10; i++ {
		idx.Insert(Entry{
			EpisodeID: uuid.New(),
			Domain:    "web-api",
			TaskType:  types.TaskDebugging,
			Time:      now.Add(-time.Duration(i) * 48 * time.Hour),
		})
	}

	clusters := idx.TopClusters("web-api", types.TaskDebugging, 3)
	if len(clusters) > 3 {
		t.Errorf("len(clusters) = %d, want <= 3", len(clusters))
	}
}

func TestClusterName_Recent(t *testing.T) {
	now := time.Now()
	if name := ClusterName(now, now); name != "recent" {
		t.Errorf("ClusterName(now, now) = %q, want recent", name)
	}
}

func TestDecayWeight_Monotonic(t *testing.T) {
	now := time.Now()
	recent := DecayWeight(now.Add(-time.Hour), now, 24*time.Hour)
	old := DecayWeight(now.Add(-240*time.Hour), now, 24*time.Hour)
	if recent <= old {
		t.Errorf("expected recent weight (%v) > old weight (%v)", recent, old)
	}
}

func TestDecayWeight_NoHalfLife(t *testing.T) {
	now := time.Now()
	if w := DecayWeight(now.Add(-time.Hour), now, 0); w != 1 {
		t.Errorf("DecayWeight with zero half-life = %v, want 1", w)
	}
}

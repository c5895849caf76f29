// Package spatiotemporal implements the three-level domain -> task_type
// -> temporal_cluster index from spec.md §4.7: weak references (id +
// key fields) into the primary store, inserted on completion and
// removed on eviction/deletion, rebuildable at startup.
package spatiotemporal

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/types"
)

// ClusterWidth is the fixed bucket width for non-recent clusters.
const ClusterWidth = 24 * time.Hour

// RecentWindow bounds the exponential-decay "recent" bucket.
const RecentWindow = time.Hour

// Entry is a weak reference held by the index: enough to score and
// fetch, without duplicating the episode body.
type Entry struct {
	EpisodeID uuid.UUID
	Domain    string
	TaskType  types.TaskType
	Time      time.Time
	Reward    float64
}

type clusterKey struct {
	domain   string
	taskType types.TaskType
	cluster  string
}

// Index is the RW-locked three-level map. Per spec.md §5, readers
// dominate; inserts use try-lock semantics and defer to TryInsert's
// caller on contention.
type Index struct {
	mu       sync.RWMutex
	clusters map[clusterKey][]Entry
	byID     map[uuid.UUID]clusterKey
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		clusters: make(map[clusterKey][]Entry),
		byID:     make(map[uuid.UUID]clusterKey),
	}
}

// ClusterName buckets t into a fixed-width window id, or "recent" if
// t falls within RecentWindow of now.
func ClusterName(t, now time.Time) string {
	if now.Sub(t) <= RecentWindow {
		return "recent"
	}
	bucket := t.Truncate(ClusterWidth)
	return bucket.Format(time.RFC3339)
}

// Insert adds e to the index, replacing any prior entry for the same
// episode id.
func (idx *Index) Insert(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(e.EpisodeID)

	key := clusterKey{domain: e.Domain, taskType: e.TaskType, cluster: ClusterName(e.Time, time.Now())}
	idx.clusters[key] = append(idx.clusters[key], e)
	idx.byID[e.EpisodeID] = key
}

// TryInsert attempts a non-blocking insert, returning false on lock
// contention so the caller can defer the insert to a background task,
// per spec.md §5's "Inserts use try_write" requirement.
func (idx *Index) TryInsert(e Entry) bool {
	if !idx.mu.TryLock() {
		return false
	}
	defer idx.mu.Unlock()

	idx.removeLocked(e.EpisodeID)
	key := clusterKey{domain: e.Domain, taskType: e.TaskType, cluster: ClusterName(e.Time, time.Now())}
	idx.clusters[key] = append(idx.clusters[key], e)
	idx.byID[e.EpisodeID] = key
	return true
}

// Remove evicts an episode's weak reference from the index.
func (idx *Index) Remove(id uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id uuid.UUID) {
	key, ok := idx.byID[id]
	if !ok {
		return
	}
	entries := idx.clusters[key]
	for i, e := range entries {
		if e.EpisodeID == id {
			idx.clusters[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(idx.clusters[key]) == 0 {
		delete(idx.clusters, key)
	}
	delete(idx.byID, id)
}

// TopClusters returns the entries of up to maxClusters clusters for
// (domain, taskType) ranked by recency: "recent" first, then
// newest-to-oldest fixed-width buckets.
func (idx *Index) TopClusters(domain string, taskType types.TaskType, maxClusters int) [][]Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type named struct {
		name    string
		entries []Entry
	}
	var matches []named
	for key, entries := range idx.clusters {
		if key.domain != domain {
			continue
		}
		if taskType != "" && key.taskType != taskType {
			continue
		}
		matches = append(matches, named{name: key.cluster, entries: entries})
	}

	// "recent" always ranks first; remaining clusters sort
	// lexicographically descending, which matches descending
	// chronological order for RFC3339-formatted bucket names.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if less(matches[j].name, matches[i].name) {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	if maxClusters > 0 && len(matches) > maxClusters {
		matches = matches[:maxClusters]
	}

	out := make([][]Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.entries)
	}
	return out
}

func less(a, b string) bool {
	if a == "recent" {
		return true
	}
	if b == "recent" {
		return false
	}
	return a > b
}

// DecayWeight returns the exponential-decay weight for an entry at
// time t, relative to now, used by the retriever's temporal-decay
// term.
func DecayWeight(t, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	age := now.Sub(t)
	if age <= 0 {
		return 1
	}
	halvings := float64(age) / float64(halfLife)
	return math.Pow(2, -halvings)
}

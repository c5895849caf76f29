package relationship

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

type fakeRelStore struct {
	added []*types.Relationship
}

func (f *fakeRelStore) AddRelationship(_ context.Context, r *types.Relationship) error {
	f.added = append(f.added, r)
	return nil
}
func (f *fakeRelStore) RemoveRelationship(context.Context, string) error { return nil }
func (f *fakeRelStore) GetRelationships(context.Context, string, store.RelationshipDirection, *types.RelationshipType, float64) ([]*types.Relationship, error) {
	return nil, nil
}
func (f *fakeRelStore) FindRelated(_ context.Context, _ string, maxDepth int, _ float64) ([]*types.Relationship, error) {
	if maxDepth > MaxDepth {
		panic("maxDepth not clamped")
	}
	return nil, nil
}
func (f *fakeRelStore) CheckExists(context.Context, string, string, types.RelationshipType) (bool, error) {
	return false, nil
}
func (f *fakeRelStore) DependencyGraph(_ context.Context, _ []string, _ []types.RelationshipType, maxNodes int) (map[string][]*types.Relationship, error) {
	if maxNodes > MaxNodes {
		panic("maxNodes not clamped")
	}
	return nil, nil
}
func (f *fakeRelStore) ValidateNoCycle(context.Context, string, string, types.RelationshipType) (bool, []string, error) {
	return true, nil, nil
}
func (f *fakeRelStore) TopologicalOrder(context.Context, []string, types.RelationshipType) ([]store.TopoLevel, []*types.Relationship, error) {
	return nil, nil, nil
}

func TestAdd_RejectsSelfLoop(t *testing.T) {
	svc := New(&fakeRelStore{})
	id := uuid.New()
	_, err := svc.Add(context.Background(), id, id, types.RelFollows, 0.5, nil)
	if err == nil {
		t.Fatal("expected error for self-loop relationship")
	}
}

func TestAdd_RejectsInvalidStrength(t *testing.T) {
	svc := New(&fakeRelStore{})
	_, err := svc.Add(context.Background(), uuid.New(), uuid.New(), types.RelFollows, 1.5, nil)
	if err == nil {
		t.Fatal("expected error for out-of-range strength")
	}
}

func TestAdd_PersistsValidRelationship(t *testing.T) {
	fs := &fakeRelStore{}
	svc := New(fs)
	r, err := svc.Add(context.Background(), uuid.New(), uuid.New(), types.RelCauses, 0.9, nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(fs.added) != 1 || fs.added[0].ID != r.ID {
		t.Fatal("expected relationship persisted to store")
	}
}

func TestFindRelated_ClampsMaxDepth(t *testing.T) {
	svc := New(&fakeRelStore{})
	if _, err := svc.FindRelated(context.Background(), uuid.New(), 999, 0); err != nil {
		t.Fatalf("FindRelated() error = %v", err)
	}
}

func TestDependencyGraph_ClampsMaxNodes(t *testing.T) {
	svc := New(&fakeRelStore{})
	if _, err := svc.DependencyGraph(context.Background(), []uuid.UUID{uuid.New()}, nil, 99999); err != nil {
		t.Fatalf("DependencyGraph() error = %v", err)
	}
}

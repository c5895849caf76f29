package tag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
)

type fakeTagStore struct {
	added map[string]map[string]struct{}
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{added: make(map[string]map[string]struct{})}
}

func (f *fakeTagStore) AddTags(_ context.Context, episodeID string, tags map[string]struct{}) error {
	f.added[episodeID] = tags
	return nil
}
func (f *fakeTagStore) RemoveTags(context.Context, string, map[string]struct{}) error { return nil }
func (f *fakeTagStore) SetTags(context.Context, string, map[string]struct{}) error    { return nil }
func (f *fakeTagStore) GetTags(_ context.Context, episodeID string) (map[string]struct{}, error) {
	return f.added[episodeID], nil
}
func (f *fakeTagStore) ListByTags(context.Context, []string, bool) ([]string, error) { return nil, nil }
func (f *fakeTagStore) GetAllTags(context.Context) ([]types.TagMetadata, error)       { return nil, nil }
func (f *fakeTagStore) TagStatistics(context.Context) (store.TagStatistics, error)    { return store.TagStatistics{}, nil }

func TestAdd_NormalizesAndPersists(t *testing.T) {
	fs := newFakeTagStore()
	svc := New(fs)
	id := uuid.New()

	require.NoError(t, svc.Add(context.Background(), id, []string{"  Backend  ", "API"}))

	got, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, got, "backend")
	assert.Contains(t, got, "api")
}

func TestAdd_RejectsInvalidTag(t *testing.T) {
	fs := newFakeTagStore()
	svc := New(fs)
	err := svc.Add(context.Background(), uuid.New(), []string{"x"})
	assert.Error(t, err)
}

func TestSearch_RejectsInvalidTag(t *testing.T) {
	fs := newFakeTagStore()
	svc := New(fs)
	_, err := svc.Search(context.Background(), []string{"!!invalid!!"}, true)
	assert.Error(t, err)
}

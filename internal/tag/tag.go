// Package tag is the validating service layer in front of
// store.TagStore, exposing the normalized tag operations from
// spec.md §4.12/§6.
package tag

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexusmem/memengine/internal/store"
	"github.com/nexusmem/memengine/internal/types"
	"github.com/nexusmem/memengine/internal/validation"
)

// Service validates and forwards tag operations to a store.TagStore.
type Service struct {
	store store.TagStore
}

// New creates a Service bound to s.
func New(s store.TagStore) *Service {
	return &Service{store: s}
}

// Add normalizes raw and adds the resulting tags to episodeID.
func (svc *Service) Add(ctx context.Context, episodeID uuid.UUID, raw []string) error {
	tags, err := validation.Tags(raw)
	if err != nil {
		return err
	}
	return svc.store.AddTags(ctx, episodeID.String(), tags)
}

// Remove normalizes raw and removes the resulting tags from episodeID.
func (svc *Service) Remove(ctx context.Context, episodeID uuid.UUID, raw []string) error {
	tags, err := validation.Tags(raw)
	if err != nil {
		return err
	}
	return svc.store.RemoveTags(ctx, episodeID.String(), tags)
}

// Set replaces episodeID's tag set with the normalized form of raw.
func (svc *Service) Set(ctx context.Context, episodeID uuid.UUID, raw []string) error {
	tags, err := validation.Tags(raw)
	if err != nil {
		return err
	}
	return svc.store.SetTags(ctx, episodeID.String(), tags)
}

// Get returns episodeID's current tag set.
func (svc *Service) Get(ctx context.Context, episodeID uuid.UUID) (map[string]struct{}, error) {
	return svc.store.GetTags(ctx, episodeID.String())
}

// Search returns episode IDs matching tags, either requiring all
// (matchAll) or any of them.
func (svc *Service) Search(ctx context.Context, rawTags []string, matchAll bool) ([]string, error) {
	tags := make([]string, 0, len(rawTags))
	for _, raw := range rawTags {
		t, err := validation.Tag(raw)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return svc.store.ListByTags(ctx, tags, matchAll)
}

// All returns usage metadata for every normalized tag in the system.
func (svc *Service) All(ctx context.Context) ([]types.TagMetadata, error) {
	return svc.store.GetAllTags(ctx)
}

// Stats returns aggregate tag usage statistics.
func (svc *Service) Stats(ctx context.Context) (store.TagStatistics, error) {
	return svc.store.TagStatistics(ctx)
}

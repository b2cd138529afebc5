package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/store"
)

func testTags() []domain.Tag {
	return []domain.Tag{
		{ID: "t1", Name: "Go", Description: "The Go language", UsageCount: 40},
		{ID: "t2", Name: "rust", UsageCount: 12},
		{ID: "t3", Name: "Concurrency", Description: "Goroutines and threads", UsageCount: 7},
	}
}

func TestTagStore_FetchPage_DefaultSort(t *testing.T) {
	api := &fakeTagAPI{tags: testTags()}
	s := store.NewTagStore(api, store.Deps{})

	got, err := s.FetchPage(context.Background(), domain.PageRequest{Page: 0, Size: 20}, false)
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Equal(t, "usageCount:desc", api.lastSort)
	assert.Len(t, s.List(), 3)
}

func TestTagStore_ByNameIgnoresCase(t *testing.T) {
	s := store.NewTagStore(&fakeTagAPI{tags: testTags()}, store.Deps{})
	_, err := s.FetchPage(context.Background(), domain.PageRequest{}, true)
	require.NoError(t, err)

	tag, ok := s.ByName("GO")
	require.True(t, ok)
	assert.Equal(t, "t1", tag.ID)
	assert.True(t, s.Exists("concurrency"))
	assert.False(t, s.Exists("zig"))
}

func TestTagStore_Filter(t *testing.T) {
	s := store.NewTagStore(&fakeTagAPI{tags: testTags()}, store.Deps{})
	_, _ = s.FetchPage(context.Background(), domain.PageRequest{}, true)

	tests := []struct {
		name   string
		filter store.TagFilter
		want   []string
	}{
		{name: "no filter", filter: store.TagFilter{}, want: []string{"t1", "t2", "t3"}},
		{name: "min usage", filter: store.TagFilter{MinUsage: 10}, want: []string{"t1", "t2"}},
		{name: "max usage", filter: store.TagFilter{MaxUsage: 12}, want: []string{"t2", "t3"}},
		{name: "term in description", filter: store.TagFilter{Term: "goroutines"}, want: []string{"t3"}},
		{name: "term in name", filter: store.TagFilter{Term: "RUS"}, want: []string{"t2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, tag := range s.Filter(tt.filter) {
				got = append(got, tag.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagStore_Suggest(t *testing.T) {
	var many []domain.Tag
	for i := range 15 {
		many = append(many, domain.Tag{ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("go-%d", i)})
	}
	api := &fakeTagAPI{search: many}
	s := store.NewTagStore(api, store.Deps{})
	ctx := context.Background()

	assert.Empty(t, s.Suggest(ctx, "g"))
	assert.NotNil(t, s.Suggest(ctx, "g"))
	assert.Len(t, s.Suggest(ctx, "go"), 10)

	api.err = errors.Internal("down")
	got := s.Suggest(ctx, "go")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTagStore_Stats(t *testing.T) {
	s := store.NewTagStore(&fakeTagAPI{tags: testTags()}, store.Deps{})
	_, _ = s.FetchPage(context.Background(), domain.PageRequest{}, true)

	stats := s.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 59, stats.TotalUsage)
	assert.InDelta(t, 19.67, stats.AverageUsage, 0.001)
	assert.Equal(t, "Go", stats.MostUsed)
	assert.Equal(t, 2, stats.WithDescription)
}

func TestTagStore_Popular(t *testing.T) {
	s := store.NewTagStore(&fakeTagAPI{tags: testTags()}, store.Deps{})

	got, err := s.Popular(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, s.PopularList(), 2)
	assert.Empty(t, s.List())
	assert.True(t, s.Exists("rust"))
}

func TestTagStore_PopularSurvivesFirstPageReload(t *testing.T) {
	ctx := context.Background()
	api := &fakeTagAPI{tags: testTags()}
	s := store.NewTagStore(api, store.Deps{})
	_, err := s.FetchPage(ctx, domain.PageRequest{}, true)
	require.NoError(t, err)
	_, err = s.Popular(ctx, 2)
	require.NoError(t, err)

	api.tags = testTags()[2:]
	_, err = s.FetchPage(ctx, domain.PageRequest{}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"t3"}, tagIDs(s.List()))
	assert.Equal(t, []string{"t1", "t2"}, tagIDs(s.PopularList()))
}

func tagIDs(tags []domain.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.ID)
	}
	return out
}

func TestTagStore_FetchByName(t *testing.T) {
	s := store.NewTagStore(&fakeTagAPI{tags: testTags()}, store.Deps{})

	tag, err := s.FetchByName(context.Background(), "CONCURRENCY")
	require.NoError(t, err)
	assert.Equal(t, "t3", tag.ID)

	_, err = s.FetchByName(context.Background(), "zig")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

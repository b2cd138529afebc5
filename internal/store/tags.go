package store

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// TagAPI is the slice of the backend client the tag store uses.
type TagAPI interface {
	ListTags(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Tag], error)
	SearchTags(ctx context.Context, query string) ([]domain.Tag, error)
	PopularTags(ctx context.Context, limit int) ([]domain.Tag, error)
	GetTag(ctx context.Context, id string) (domain.Tag, error)
	GetTagByName(ctx context.Context, name string) (domain.Tag, error)
}

const (
	minSuggestInput = 2
	maxSuggestions  = 10
)

// TagFilter narrows the cached tag view. Zero fields do not filter.
type TagFilter struct {
	MinUsage int
	MaxUsage int
	Term     string
}

// TagStore caches tags. Names match case-insensitively.
type TagStore struct {
	loading
	api  TagAPI
	deps Deps
	tags *Collection[domain.Tag]

	mu      sync.RWMutex
	cursor  domain.Cursor
	popular []string
}

// NewTagStore creates a tag store.
func NewTagStore(api TagAPI, deps Deps) *TagStore {
	deps = deps.withDefaults()
	return &TagStore{
		api:  api,
		deps: deps,
		tags: NewCollection("tags",
			func(t *domain.Tag) string { return t.ID },
			func(t *domain.Tag) time.Time { return t.Version() },
		).WithIndexTransform("name", func(t *domain.Tag) []string {
			return []string{domain.FoldTag(t.Name)}
		}, domain.FoldTag).OnStale(deps.staleHook()),
	}
}

// FetchPage loads one page of tags with page semantics. The default sort is usage count, descending.
func (s *TagStore) FetchPage(ctx context.Context, req domain.PageRequest, reset bool) ([]domain.Tag, error) {
	defer s.start()()

	if req.SortBy == "" {
		req.SortBy, req.Dir = "usageCount", domain.SortDesc
	}
	page, err := s.api.ListTags(ctx, req)
	if err != nil {
		return nil, err
	}

	var stored []domain.Tag
	if reset || req.Page == 0 {
		stored = s.tags.Reset(page.Items)
	} else {
		stored = s.tags.Extend(page.Items)
	}
	s.mu.Lock()
	s.cursor = page.Cursor
	s.mu.Unlock()

	for _, t := range stored {
		s.deps.Emitter.Emit(sse.NewTagUpsertedEvent(t))
	}
	return stored, nil
}

// Popular loads the most used tags.
func (s *TagStore) Popular(ctx context.Context, limit int) ([]domain.Tag, error) {
	defer s.start()()

	list, err := s.api.PopularTags(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, t := range list {
		stored, _ := s.tags.Put(t, Detached)
		ids = append(ids, stored.ID)
	}
	s.mu.Lock()
	s.popular = ids
	s.tags.Pin("popular", ids)
	s.mu.Unlock()
	return list, nil
}

// Suggest returns at most ten tags matching input. Inputs shorter than two
// characters and failures yield an empty list.
func (s *TagStore) Suggest(ctx context.Context, input string) []domain.Tag {
	input = strings.TrimSpace(input)
	if len([]rune(input)) < minSuggestInput {
		return []domain.Tag{}
	}
	list, err := s.api.SearchTags(ctx, input)
	if err != nil {
		s.deps.Logger.Debug("tag suggestions unavailable",
			slog.String("input", input),
			slog.String("error", err.Error()))
		return []domain.Tag{}
	}
	if len(list) > maxSuggestions {
		list = list[:maxSuggestions]
	}
	return list
}

// FetchByName loads a tag by its name.
func (s *TagStore) FetchByName(ctx context.Context, name string) (domain.Tag, error) {
	defer s.start()()

	t, err := s.api.GetTagByName(ctx, name)
	if err != nil {
		return domain.Tag{}, err
	}
	stored := s.tags.SetCurrent(t)
	s.deps.Emitter.Emit(sse.NewTagUpsertedEvent(stored))
	return stored, nil
}

// FetchByID loads a tag by id.
func (s *TagStore) FetchByID(ctx context.Context, id string) (domain.Tag, error) {
	defer s.start()()

	t, err := s.api.GetTag(ctx, id)
	if err != nil {
		return domain.Tag{}, err
	}
	stored := s.tags.SetCurrent(t)
	s.deps.Emitter.Emit(sse.NewTagUpsertedEvent(stored))
	return stored, nil
}

// ByName returns a cached tag by name, ignoring case.
func (s *TagStore) ByName(name string) (domain.Tag, bool) {
	found := s.tags.Lookup("name", name)
	if len(found) == 0 {
		return domain.Tag{}, false
	}
	return found[0], true
}

// Exists reports whether a tag named name is cached, ignoring case.
func (s *TagStore) Exists(name string) bool {
	_, ok := s.ByName(name)
	return ok
}

// Filter returns the cached tags matching f in view order.
func (s *TagStore) Filter(f TagFilter) []domain.Tag {
	term := domain.FoldTag(f.Term)
	return s.tags.Filter(func(t *domain.Tag) bool {
		if f.MinUsage > 0 && t.UsageCount < f.MinUsage {
			return false
		}
		if f.MaxUsage > 0 && t.UsageCount > f.MaxUsage {
			return false
		}
		if term != "" &&
			!strings.Contains(domain.FoldTag(t.Name), term) &&
			!strings.Contains(domain.FoldTag(t.Description), term) {
			return false
		}
		return true
	})
}

// Stats summarizes the cached tag view.
func (s *TagStore) Stats() domain.TagStats {
	var stats domain.TagStats
	most := -1
	for _, t := range s.tags.List() {
		stats.Total++
		stats.TotalUsage += t.UsageCount
		if t.UsageCount > most {
			most = t.UsageCount
			stats.MostUsed = t.Name
		}
		if t.Description != "" {
			stats.WithDescription++
		}
	}
	if stats.Total > 0 {
		stats.AverageUsage = math.Round(float64(stats.TotalUsage)/float64(stats.Total)*100) / 100
	}
	return stats
}

// List returns the ordered tag view.
func (s *TagStore) List() []domain.Tag {
	return s.tags.List()
}

// PopularList returns the tags of the last Popular call.
func (s *TagStore) PopularList() []domain.Tag {
	s.mu.RLock()
	ids := append([]string(nil), s.popular...)
	s.mu.RUnlock()

	out := make([]domain.Tag, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tags.Get(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// Cursor returns the pagination state of the last page load.
func (s *TagStore) Cursor() domain.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

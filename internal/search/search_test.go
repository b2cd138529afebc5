package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

// setupTestIndex creates a temporary on-disk search index.
func setupTestIndex(t *testing.T) *SearchIndex {
	t.Helper()

	index, err := NewSearchIndex(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func question(id, title, body string, tags ...string) domain.Question {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Question{
		Syncable:    domain.Syncable{CreatedAt: created, UpdatedAt: created},
		ID:          id,
		Title:       title,
		Description: body,
		Tags:        tags,
		Author:      domain.User{ID: "u1", Username: "gopher", DisplayName: "Go Pher"},
	}
}

func seed(t *testing.T, index *SearchIndex) {
	t.Helper()
	qs := []domain.Question{
		question("q1", "How do goroutines leak", "<p>My <b>channel</b> never closes</p>", "Go", "concurrency"),
		question("q2", "Parsing JSON with unknown keys", "Use **json.RawMessage** for the payload", "go", "json"),
		question("q3", "Rust lifetimes explained", "Borrow checker complaints", "rust"),
	}
	qs[1].HasAcceptedAnswer = true
	qs[1].Score = 12
	qs[2].IsClosed = true
	require.NoError(t, index.IndexQuestions(context.Background(), qs))
}

func TestNewSearchIndex(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestNewSearchIndex_ReopensExisting(t *testing.T) {
	dir := t.TempDir()
	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, index.IndexQuestions(context.Background(), []domain.Question{question("q1", "Title", "Body")}))
	require.NoError(t, index.Close())

	reopened, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIndexQuestions_ReplacesByID(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexQuestions(ctx, []domain.Question{question("q1", "Old title", "body")}))
	require.NoError(t, index.IndexQuestions(ctx, []domain.Question{question("q1", "Fresh title", "body")}))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	ids, err := index.QuestionIDs(ctx, "fresh", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, ids)
}

func TestDeleteQuestion(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.DeleteQuestion(context.Background(), "q1"))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSearch_MatchesTitleAndPlainBody(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	ids, err := index.QuestionIDs(ctx, "goroutines", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, ids)

	// Markup is stripped before indexing.
	ids, err = index.QuestionIDs(ctx, "channel", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, ids)
}

func TestSearch_TagFilterIsCaseInsensitive(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.Tags = []string{"GO"}
	res, err := index.Search(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), res.Total)
	var got []string
	for _, h := range res.Hits {
		got = append(got, h.ID)
	}
	assert.ElementsMatch(t, []string{"q1", "q2"}, got)
}

func TestSearch_UnansweredAndOpen(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.Unanswered = true
	params.OpenOnly = true
	res, err := index.Search(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, "q1", res.Hits[0].ID)
	assert.ElementsMatch(t, []string{"go", "concurrency"}, res.Hits[0].Tags)
}

func TestSearch_SortByScore(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	params := DefaultSearchParams()
	params.SortBy = "score"
	res, err := index.Search(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, res.Hits, 3)
	assert.Equal(t, "q2", res.Hits[0].ID)
	assert.Equal(t, 12, res.Hits[0].Score)
}

func TestSearch_TagFacets(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), DefaultSearchParams())
	require.NoError(t, err)

	counts := map[string]int{}
	for _, f := range res.Facets {
		counts[f.Value] = f.Count
	}
	assert.Equal(t, 2, counts["go"])
	assert.Equal(t, 1, counts["rust"])
}

func TestRebuild_InMemory(t *testing.T) {
	index, err := NewSearchIndex(Options{})
	require.NoError(t, err)
	defer index.Close()
	seed(t, index)

	require.NoError(t, index.Rebuild())

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestQuestionToDocument(t *testing.T) {
	q := question("q9", "Title", "# Heading\n\nSome *text*", "Go ")
	doc := QuestionToDocument(&q)

	assert.Equal(t, "Go Pher gopher", doc.Author)
	assert.Equal(t, []string{"go"}, doc.Tags)
	assert.NotContains(t, doc.Body, "*")
	assert.Equal(t, q.CreatedAt.UnixMilli(), doc.CreatedAt)
}

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
)

func acceptedIn(list []domain.Answer) []string {
	var out []string
	for _, a := range list {
		if a.IsAccepted {
			out = append(out, a.ID)
		}
	}
	return out
}

func TestAnswerStore_Create_FillsQuestionID(t *testing.T) {
	api := &fakeAnswerAPI{answers: map[string]domain.Answer{"new": answer("a1", "", 1)}}
	s := store.NewAnswerStore(api, store.Deps{})

	got, err := s.Create(context.Background(), domain.AnswerInput{QuestionID: "q1", Content: "use a mutex"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, "q1", got.QuestionID)
	assert.Equal(t, "use a mutex", got.Content)
	assert.Len(t, s.ForQuestion("q1"), 1)
}

func TestAnswerStore_FetchForQuestion_ReplacesSet(t *testing.T) {
	ctx := context.Background()
	emitter := &recordingEmitter{}
	api := &fakeAnswerAPI{byQuestion: map[string][]domain.Answer{
		"q1": {answer("a1", "q1", 1), answer("a2", "q1", 1)},
		"q2": {answer("b1", "q2", 1)},
	}}
	s := store.NewAnswerStore(api, store.Deps{Emitter: emitter})

	_, err := s.FetchForQuestion(ctx, "q1")
	require.NoError(t, err)
	_, err = s.FetchForQuestion(ctx, "q2")
	require.NoError(t, err)

	api.byQuestion["q1"] = []domain.Answer{answer("a2", "q1", 2), answer("a3", "q1", 1)}
	got, err := s.FetchForQuestion(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	var forQ1 []string
	for _, a := range s.ForQuestion("q1") {
		forQ1 = append(forQ1, a.ID)
	}
	assert.Equal(t, []string{"a2", "a3"}, forQ1)
	assert.Len(t, s.ForQuestion("q2"), 1)

	deleted := emitter.ofType(sse.EventAnswerDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "a1", deleted[0].Data.(sse.AnswerDeletedEventData).AnswerID)
}

func TestAnswerStore_FetchForQuestion_KeepsOneAccepted(t *testing.T) {
	a1 := answer("a1", "q1", 1)
	a1.IsAccepted = true
	a2 := answer("a2", "q1", 1)
	a2.IsAccepted = true
	api := &fakeAnswerAPI{byQuestion: map[string][]domain.Answer{"q1": {a1, a2}}}
	s := store.NewAnswerStore(api, store.Deps{})

	got, err := s.FetchForQuestion(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, []string{"a1"}, acceptedIn(got))
	assert.Equal(t, []string{"a1"}, acceptedIn(s.ForQuestion("q1")))
}

func TestAnswerStore_Accept_UnmarksSiblings(t *testing.T) {
	ctx := context.Background()
	api := &fakeAnswerAPI{
		byQuestion: map[string][]domain.Answer{"q1": {answer("a1", "q1", 1), answer("a2", "q1", 1)}},
		answers: map[string]domain.Answer{
			"a1": answer("a1", "q1", 1),
			"a2": answer("a2", "q1", 1),
		},
	}
	s := store.NewAnswerStore(api, store.Deps{})
	_, err := s.FetchForQuestion(ctx, "q1")
	require.NoError(t, err)

	for _, id := range []string{"a1", "a2", "a1"} {
		got, err := s.Accept(ctx, id, "u1")
		require.NoError(t, err)
		assert.True(t, got.IsAccepted)
		assert.Equal(t, []string{id}, acceptedIn(s.ForQuestion("q1")))
	}
}

func TestAnswerStore_FetchByUser_ExtendsView(t *testing.T) {
	ctx := context.Background()
	api := &fakeAnswerAPI{
		byQuestion: map[string][]domain.Answer{"q1": {answer("a1", "q1", 1)}},
		byUser: map[int][]domain.Answer{
			0: {answer("u1", "q7", 1), answer("a1", "q1", 2)},
		},
	}
	s := store.NewAnswerStore(api, store.Deps{})
	_, _ = s.FetchForQuestion(ctx, "q1")

	_, err := s.FetchByUser(ctx, "user-1", domain.PageRequest{Page: 0})
	require.NoError(t, err)

	assert.Len(t, s.List(), 2)
	assert.Len(t, s.ForQuestion("q1"), 1)
	assert.Equal(t, 0, s.Cursor().Page)
}

func TestAnswerStore_ApplyScore(t *testing.T) {
	s := store.NewAnswerStore(&fakeAnswerAPI{}, store.Deps{})
	s.MergeFromPush(answer("a1", "q1", 1))

	s.ApplyScore("a1", domain.VoteScore{Score: 13, Upvotes: 2, Downvotes: 1})
	got, _ := s.Get("a1")
	assert.Equal(t, 13, got.Score)
	assert.Equal(t, 2, got.UpvoteCount)

	s.ApplyScoreValue("a1", 4)
	got, _ = s.Get("a1")
	assert.Equal(t, 4, got.Score)
	assert.Equal(t, 2, got.UpvoteCount)
	assert.Equal(t, 1, got.DownvoteCount)
}

func TestAnswerStore_MergeFromPush_Idempotent(t *testing.T) {
	s := store.NewAnswerStore(&fakeAnswerAPI{}, store.Deps{})

	first := answer("a1", "q1", 2)
	second := answer("a1", "q1", 2)
	second.Content = "second"

	assert.Equal(t, store.Inserted, s.MergeFromPush(first))
	assert.Equal(t, store.Updated, s.MergeFromPush(second))

	require.Len(t, s.List(), 1)
	assert.Equal(t, "second", s.List()[0].Content)

	assert.Equal(t, store.Stale, s.MergeFromPush(answer("a1", "q1", 1)))
}

func TestAnswerStore_PushedAcceptedAnswerWins(t *testing.T) {
	s := store.NewAnswerStore(&fakeAnswerAPI{}, store.Deps{})
	a1 := answer("a1", "q1", 1)
	a1.IsAccepted = true
	s.MergeFromPush(a1)

	a2 := answer("a2", "q1", 1)
	a2.IsAccepted = true
	s.MergeFromPush(a2)

	assert.Equal(t, []string{"a2"}, acceptedIn(s.ForQuestion("q1")))
}

func TestAnswerStore_Delete(t *testing.T) {
	emitter := &recordingEmitter{}
	s := store.NewAnswerStore(&fakeAnswerAPI{}, store.Deps{Emitter: emitter})
	s.MergeFromPush(answer("a1", "q1", 1))

	require.NoError(t, s.Delete(context.Background(), "a1", "u1"))

	_, ok := s.Get("a1")
	assert.False(t, ok)
	assert.Empty(t, s.ForQuestion("q1"))
	assert.Len(t, emitter.ofType(sse.EventAnswerDeleted), 1)
}

func TestAnswerStore_FetchByID(t *testing.T) {
	api := &fakeAnswerAPI{answers: map[string]domain.Answer{"a1": answer("a1", "q1", 1)}}
	s := store.NewAnswerStore(api, store.Deps{})

	got, err := s.FetchByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "a1", cur.ID)
	assert.Empty(t, s.List())
}

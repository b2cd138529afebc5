package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// AnswerAPI is the slice of the backend client the answer store uses.
type AnswerAPI interface {
	CreateAnswer(ctx context.Context, in domain.AnswerInput, userID string) (domain.Answer, error)
	GetAnswer(ctx context.Context, id string) (domain.Answer, error)
	AnswersForQuestion(ctx context.Context, questionID string) ([]domain.Answer, error)
	AnswersByUser(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Answer], error)
	UpdateAnswer(ctx context.Context, id, content, currentUserID string) (domain.Answer, error)
	MarkAccepted(ctx context.Context, id, currentUserID string) (domain.Answer, error)
	DeleteAnswer(ctx context.Context, id, currentUserID string) error
}

// AnswerStore caches answers. Answers of one question are found through the
// question index; the ordered view is append-only in arrival order.
type AnswerStore struct {
	loading
	api     AnswerAPI
	deps    Deps
	answers *Collection[domain.Answer]

	cursorMu sync.RWMutex
	cursor   domain.Cursor
}

// NewAnswerStore creates an answer store.
func NewAnswerStore(api AnswerAPI, deps Deps) *AnswerStore {
	deps = deps.withDefaults()
	return &AnswerStore{
		api:  api,
		deps: deps,
		answers: NewCollection("answers",
			func(a *domain.Answer) string { return a.ID },
			func(a *domain.Answer) time.Time { return a.Version() },
		).WithIndex("question", func(a *domain.Answer) []string {
			if a.QuestionID == "" {
				return nil
			}
			return []string{a.QuestionID}
		}).OnStale(deps.staleHook()),
	}
}

// Create posts an answer and appends it.
func (s *AnswerStore) Create(ctx context.Context, in domain.AnswerInput, userID string) (domain.Answer, error) {
	defer s.start()()

	a, err := s.api.CreateAnswer(ctx, in, userID)
	if err != nil {
		return domain.Answer{}, err
	}
	if a.QuestionID == "" {
		a.QuestionID = in.QuestionID
	}
	stored, _ := s.put(a, Append)
	return stored, nil
}

// FetchByID loads an answer into the current slot.
func (s *AnswerStore) FetchByID(ctx context.Context, id string) (domain.Answer, error) {
	defer s.start()()

	a, err := s.api.GetAnswer(ctx, id)
	if err != nil {
		return domain.Answer{}, err
	}
	stored := s.answers.SetCurrent(a)
	s.enforceSingleAccepted(stored)
	s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(stored))
	return stored, nil
}

// FetchForQuestion loads every answer of a question, replacing the cached ones.
func (s *AnswerStore) FetchForQuestion(ctx context.Context, questionID string) ([]domain.Answer, error) {
	defer s.start()()

	list, err := s.api.AnswersForQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return s.ReplaceForQuestion(questionID, list), nil
}

// FetchByUser loads one page of a user's answers, upserting them into the view.
func (s *AnswerStore) FetchByUser(ctx context.Context, userID string, req domain.PageRequest) ([]domain.Answer, error) {
	defer s.start()()

	page, err := s.api.AnswersByUser(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// Answers of other questions share the view, so user pages only extend it.
	stored := s.answers.Extend(page.Items)
	s.cursorMu.Lock()
	s.cursor = page.Cursor
	s.cursorMu.Unlock()

	for _, a := range stored {
		s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(a))
	}
	return stored, nil
}

// ReplaceForQuestion makes list the complete answer set of questionID.
func (s *AnswerStore) ReplaceForQuestion(questionID string, list []domain.Answer) []domain.Answer {
	keep := make(map[string]struct{}, len(list))
	for _, a := range list {
		keep[a.ID] = struct{}{}
	}
	for _, held := range s.answers.Lookup("question", questionID) {
		if _, ok := keep[held.ID]; !ok {
			s.answers.Remove(held.ID)
			s.deps.Emitter.Emit(sse.NewAnswerDeletedEvent(held.ID, questionID))
		}
	}

	out := make([]domain.Answer, 0, len(list))
	var accepted string
	for _, a := range list {
		if a.QuestionID == "" {
			a.QuestionID = questionID
		}
		stored, outcome := s.answers.Put(a, Append)
		if outcome != Stale {
			s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(stored))
		}
		if stored.IsAccepted && accepted == "" {
			accepted = stored.ID
		}
		out = append(out, stored)
	}
	if accepted != "" {
		s.ApplyAccepted(questionID, accepted)
		for i := range out {
			out[i].IsAccepted = out[i].ID == accepted
		}
	}
	return out
}

// Update edits an answer's content.
func (s *AnswerStore) Update(ctx context.Context, id, content, currentUserID string) (domain.Answer, error) {
	defer s.start()()

	a, err := s.api.UpdateAnswer(ctx, id, content, currentUserID)
	if err != nil {
		return domain.Answer{}, err
	}
	stored, _ := s.put(a, Detached)
	return stored, nil
}

// Delete removes an answer upstream and from the cache.
func (s *AnswerStore) Delete(ctx context.Context, id, currentUserID string) error {
	defer s.start()()

	if err := s.api.DeleteAnswer(ctx, id, currentUserID); err != nil {
		return err
	}
	if held, ok := s.answers.Remove(id); ok {
		s.deps.Emitter.Emit(sse.NewAnswerDeletedEvent(id, held.QuestionID))
	}
	return nil
}

// Accept marks an answer accepted upstream, then unmarks its siblings locally.
func (s *AnswerStore) Accept(ctx context.Context, id, currentUserID string) (domain.Answer, error) {
	defer s.start()()

	a, err := s.api.MarkAccepted(ctx, id, currentUserID)
	if err != nil {
		return domain.Answer{}, err
	}
	a.IsAccepted = true
	stored, _ := s.put(a, Detached)
	return stored, nil
}

// ApplyAccepted sets isAccepted on answerID and clears it on every other
// cached answer of questionID.
func (s *AnswerStore) ApplyAccepted(questionID, answerID string) {
	changed := s.answers.PatchWhere(
		func(a *domain.Answer) bool { return a.QuestionID == questionID || a.ID == answerID },
		func(a *domain.Answer) bool {
			want := a.ID == answerID
			if a.IsAccepted == want {
				return false
			}
			a.IsAccepted = want
			return true
		})
	if len(changed) == 0 {
		return
	}
	for _, a := range changed {
		s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(a))
	}
	s.deps.Emitter.Emit(sse.NewAnswerAcceptedEvent(domain.AcceptedAnswer{QuestionID: questionID, AnswerID: answerID}))
}

// ApplyScore copies a server-confirmed tally onto the cached answer.
func (s *AnswerStore) ApplyScore(answerID string, score domain.VoteScore) {
	if stored, ok := s.answers.Patch(answerID, func(a *domain.Answer) bool {
		if a.Score == score.Score && a.UpvoteCount == score.Upvotes && a.DownvoteCount == score.Downvotes {
			return false
		}
		a.Score, a.UpvoteCount, a.DownvoteCount = score.Score, score.Upvotes, score.Downvotes
		return true
	}); ok {
		s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(stored))
	}
}

// ApplyScoreValue sets a pushed score, leaving the vote counts alone.
func (s *AnswerStore) ApplyScoreValue(answerID string, score int) {
	if stored, ok := s.answers.Patch(answerID, func(a *domain.Answer) bool {
		if a.Score == score {
			return false
		}
		a.Score = score
		return true
	}); ok {
		s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(stored))
	}
}

// MergeFromPush upserts a pushed answer at the end of the view.
func (s *AnswerStore) MergeFromPush(a domain.Answer) Outcome {
	_, outcome := s.put(a, Append)
	return outcome
}

func (s *AnswerStore) put(a domain.Answer, where Placement) (domain.Answer, Outcome) {
	stored, outcome := s.answers.Put(a, where)
	if outcome == Stale {
		return stored, outcome
	}
	s.deps.Emitter.Emit(sse.NewAnswerUpsertedEvent(stored))
	s.enforceSingleAccepted(stored)
	return stored, outcome
}

func (s *AnswerStore) enforceSingleAccepted(a domain.Answer) {
	if a.IsAccepted && a.QuestionID != "" {
		s.ApplyAccepted(a.QuestionID, a.ID)
	}
}

// ForQuestion returns the cached answers of a question in arrival order.
func (s *AnswerStore) ForQuestion(questionID string) []domain.Answer {
	list := s.answers.Lookup("question", questionID)
	order := s.answers.IDs()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	slices.SortStableFunc(list, func(a, b domain.Answer) int {
		pa, oka := pos[a.ID]
		pb, okb := pos[b.ID]
		switch {
		case oka && okb:
			return pa - pb
		case oka:
			return -1
		case okb:
			return 1
		default:
			return 0
		}
	})
	return list
}

// Get returns a cached answer.
func (s *AnswerStore) Get(id string) (domain.Answer, bool) {
	return s.answers.Get(id)
}

// List returns the ordered answer view.
func (s *AnswerStore) List() []domain.Answer {
	return s.answers.List()
}

// Current returns the answer in the current slot.
func (s *AnswerStore) Current() (domain.Answer, bool) {
	return s.answers.Current()
}

// Cursor returns the pagination state of the last user-answers page.
func (s *AnswerStore) Cursor() domain.Cursor {
	s.cursorMu.RLock()
	defer s.cursorMu.RUnlock()
	return s.cursor
}

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// QuestionAPI is the slice of the backend client the question store uses.
type QuestionAPI interface {
	CreateQuestion(ctx context.Context, in domain.QuestionInput, userID string) (domain.Question, error)
	ListQuestions(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Question], error)
	SearchQuestions(ctx context.Context, query string, req domain.PageRequest) (domain.Page[domain.Question], error)
	TaggedQuestions(ctx context.Context, tags []string, req domain.PageRequest) (domain.Page[domain.Question], error)
	UnansweredQuestions(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Question], error)
	RecentQuestions(ctx context.Context, days int, req domain.PageRequest) (domain.Page[domain.Question], error)
	GetQuestion(ctx context.Context, id, currentUserID string) (backend.QuestionDetail, error)
	UpdateQuestion(ctx context.Context, id string, in domain.QuestionInput, currentUserID string) (domain.Question, error)
	AcceptAnswer(ctx context.Context, questionID, answerID, currentUserID string) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id, currentUserID string) error
}

// AnswerSink receives the answers embedded in question responses.
type AnswerSink interface {
	ReplaceForQuestion(questionID string, answers []domain.Answer) []domain.Answer
	ApplyAccepted(questionID, answerID string)
}

// QuestionStore caches questions.
type QuestionStore struct {
	loading
	api       QuestionAPI
	answers   AnswerSink
	deps      Deps
	questions *Collection[domain.Question]
	search    *indexQueue

	cursorMu sync.RWMutex
	cursor   domain.Cursor
}

// NewQuestionStore creates a question store. answers may be nil.
func NewQuestionStore(api QuestionAPI, answers AnswerSink, deps Deps) *QuestionStore {
	deps = deps.withDefaults()
	s := &QuestionStore{
		api:     api,
		answers: answers,
		deps:    deps,
		questions: NewCollection("questions",
			func(q *domain.Question) string { return q.ID },
			func(q *domain.Question) time.Time { return q.Version() },
		).WithIndexTransform("tag", func(q *domain.Question) []string {
			keys := make([]string, 0, len(q.Tags))
			for _, t := range q.Tags {
				keys = append(keys, domain.FoldTag(t))
			}
			return keys
		}, domain.FoldTag).OnStale(deps.staleHook()),
	}
	s.search = newIndexQueue(deps, s.questions.Get)
	return s
}

// Create posts a question. The new question is prepended only while the first page is shown.
func (s *QuestionStore) Create(ctx context.Context, in domain.QuestionInput, userID string) (domain.Question, error) {
	defer s.start()()

	q, err := s.api.CreateQuestion(ctx, in, userID)
	if err != nil {
		return domain.Question{}, err
	}

	where := Detached
	if s.Cursor().Page == 0 {
		where = Prepend
	}
	stored, _ := s.questions.Put(q, where)
	s.published(stored)
	return stored, nil
}

// FetchPage loads one page. Page 0 or reset replaces the view with the
// server page; later pages append, upserting ids already present.
func (s *QuestionStore) FetchPage(ctx context.Context, req domain.PageRequest, reset bool) ([]domain.Question, error) {
	defer s.start()()

	page, err := s.api.ListQuestions(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.applyPage(page, reset || req.Page == 0), nil
}

// Search runs a backend search with page semantics.
func (s *QuestionStore) Search(ctx context.Context, query string, req domain.PageRequest) ([]domain.Question, error) {
	defer s.start()()

	page, err := s.api.SearchQuestions(ctx, query, req)
	if err != nil {
		return nil, err
	}
	return s.applyPage(page, req.Page == 0), nil
}

// Tagged loads questions carrying any of tags with page semantics.
func (s *QuestionStore) Tagged(ctx context.Context, tags []string, req domain.PageRequest) ([]domain.Question, error) {
	defer s.start()()

	page, err := s.api.TaggedQuestions(ctx, tags, req)
	if err != nil {
		return nil, err
	}
	return s.applyPage(page, req.Page == 0), nil
}

// Unanswered loads questions without answers with page semantics.
func (s *QuestionStore) Unanswered(ctx context.Context, req domain.PageRequest) ([]domain.Question, error) {
	defer s.start()()

	page, err := s.api.UnansweredQuestions(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.applyPage(page, req.Page == 0), nil
}

// Recent loads questions from the last days days with page semantics.
func (s *QuestionStore) Recent(ctx context.Context, days int, req domain.PageRequest) ([]domain.Question, error) {
	defer s.start()()

	page, err := s.api.RecentQuestions(ctx, days, req)
	if err != nil {
		return nil, err
	}
	return s.applyPage(page, req.Page == 0), nil
}

func (s *QuestionStore) applyPage(page domain.Page[domain.Question], replace bool) []domain.Question {
	var stored []domain.Question
	if replace {
		stored = s.questions.Reset(page.Items)
	} else {
		stored = s.questions.Extend(page.Items)
	}

	s.cursorMu.Lock()
	s.cursor = page.Cursor
	s.cursorMu.Unlock()

	s.search.index(stored...)
	s.deps.Emitter.Emit(sse.NewQuestionsPageEvent(s.questions.IDs(), page.Cursor, replace))
	return stored
}

// FetchByID loads a question into the current slot and hands its embedded answers to the answer store.
func (s *QuestionStore) FetchByID(ctx context.Context, id, currentUserID string) (domain.Question, error) {
	defer s.start()()

	detail, err := s.api.GetQuestion(ctx, id, currentUserID)
	if err != nil {
		return domain.Question{}, err
	}
	stored := s.questions.SetCurrent(detail.Question)
	if s.answers != nil && len(detail.Answers) > 0 {
		s.answers.ReplaceForQuestion(stored.ID, detail.Answers)
	}
	s.published(stored)
	return stored, nil
}

// Update edits a question. The change is visible in the list and the current slot.
func (s *QuestionStore) Update(ctx context.Context, id string, in domain.QuestionInput, currentUserID string) (domain.Question, error) {
	defer s.start()()

	q, err := s.api.UpdateQuestion(ctx, id, in, currentUserID)
	if err != nil {
		return domain.Question{}, err
	}
	stored, outcome := s.questions.Put(q, Detached)
	if outcome != Stale {
		s.published(stored)
	}
	return stored, nil
}

// Delete removes a question upstream and from the cache.
func (s *QuestionStore) Delete(ctx context.Context, id, currentUserID string) error {
	defer s.start()()

	if err := s.api.DeleteQuestion(ctx, id, currentUserID); err != nil {
		return err
	}
	s.questions.Remove(id)
	s.search.remove(id)
	s.deps.Emitter.Emit(sse.NewQuestionDeletedEvent(id))
	return nil
}

// AcceptAnswer marks answerID accepted on questionID.
func (s *QuestionStore) AcceptAnswer(ctx context.Context, questionID, answerID, currentUserID string) (domain.Question, error) {
	defer s.start()()

	q, err := s.api.AcceptAnswer(ctx, questionID, answerID, currentUserID)
	if err != nil {
		return domain.Question{}, err
	}
	q.AcceptedAnswerID = answerID
	q.HasAcceptedAnswer = true
	if stored, outcome := s.questions.Put(q, Detached); outcome != Stale {
		s.published(stored)
	}
	s.ApplyAccepted(questionID, answerID)
	stored, _ := s.questions.Get(questionID)
	return stored, nil
}

// ApplyAccepted records an accepted answer learned from a push or a sibling store.
func (s *QuestionStore) ApplyAccepted(questionID, answerID string) {
	if stored, ok := s.questions.Patch(questionID, func(q *domain.Question) bool {
		if q.AcceptedAnswerID == answerID && q.HasAcceptedAnswer {
			return false
		}
		q.AcceptedAnswerID = answerID
		q.HasAcceptedAnswer = true
		return true
	}); ok {
		s.published(stored)
	}
	if s.answers != nil {
		s.answers.ApplyAccepted(questionID, answerID)
	}
}

// IncrementAnswerCount bumps the answer counter after a new-answer push.
func (s *QuestionStore) IncrementAnswerCount(questionID string) {
	if stored, ok := s.questions.Patch(questionID, func(q *domain.Question) bool {
		q.AnswerCount++
		return true
	}); ok {
		s.published(stored)
	}
}

// MergeFromPush upserts a pushed question. New ids go to the front.
// Applying the same payload twice leaves one entry.
func (s *QuestionStore) MergeFromPush(q domain.Question) Outcome {
	stored, outcome := s.questions.Put(q, Prepend)
	if outcome != Stale {
		s.published(stored)
	}
	return outcome
}

// Related returns up to limit questions sharing a tag with q. Failures yield an empty list.
func (s *QuestionStore) Related(ctx context.Context, q domain.Question, limit int) []domain.Question {
	if len(q.Tags) == 0 || limit <= 0 {
		return []domain.Question{}
	}
	page, err := s.api.TaggedQuestions(ctx, q.Tags, domain.PageRequest{Page: 0, Size: limit + 1})
	if err != nil {
		s.deps.Logger.Debug("related questions unavailable",
			slog.String("question_id", q.ID),
			slog.String("error", err.Error()))
		return []domain.Question{}
	}
	out := make([]domain.Question, 0, limit)
	for _, r := range page.Items {
		if r.ID == q.ID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Get returns a cached question.
func (s *QuestionStore) Get(id string) (domain.Question, bool) {
	return s.questions.Get(id)
}

// List returns the ordered question view.
func (s *QuestionStore) List() []domain.Question {
	return s.questions.List()
}

// WithTag returns cached questions carrying tag, ignoring case.
func (s *QuestionStore) WithTag(tag string) []domain.Question {
	return s.questions.Lookup("tag", tag)
}

// Current returns the question in the current slot.
func (s *QuestionStore) Current() (domain.Question, bool) {
	return s.questions.Current()
}

// ClearCurrent empties the current slot.
func (s *QuestionStore) ClearCurrent() {
	s.questions.ClearCurrent()
}

// Cursor returns the pagination state of the last page load.
func (s *QuestionStore) Cursor() domain.Cursor {
	s.cursorMu.RLock()
	defer s.cursorMu.RUnlock()
	return s.cursor
}

func (s *QuestionStore) published(q domain.Question) {
	s.search.index(q)
	s.deps.Emitter.Emit(sse.NewQuestionUpsertedEvent(q))
}

package store_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

// recordingEmitter captures emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	e, ok := event.(sse.Event)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEmitter) ofType(t sse.EventType) []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sse.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type staleCounter struct {
	mu    sync.Mutex
	count map[string]int
}

func (s *staleCounter) StaleRejected(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == nil {
		s.count = make(map[string]int)
	}
	s.count[collection]++
}

func (s *staleCounter) get(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count[collection]
}

func question(id string, minutes int) domain.Question {
	return domain.Question{
		Syncable: domain.Syncable{CreatedAt: at(0), UpdatedAt: at(minutes)},
		ID:       id,
		Title:    "Question " + id,
		Tags:     []string{"go"},
	}
}

func answer(id, questionID string, minutes int) domain.Answer {
	return domain.Answer{
		Syncable:   domain.Syncable{CreatedAt: at(0), UpdatedAt: at(minutes)},
		ID:         id,
		QuestionID: questionID,
		Content:    "Answer " + id,
	}
}

func page[T any](items []T, number int) domain.Page[T] {
	return domain.Page[T]{
		Items: items,
		Cursor: domain.Cursor{
			Page:          number,
			Size:          20,
			TotalPages:    number + 2,
			TotalElements: int64(len(items)),
			HasNext:       true,
			HasPrevious:   number > 0,
		},
	}
}

// fakeQuestionAPI serves canned pages keyed by page number.
type fakeQuestionAPI struct {
	mu       sync.Mutex
	pages    map[int][]domain.Question
	detail   backend.QuestionDetail
	created  domain.Question
	updated  domain.Question
	accepted domain.Question
	tagged   []domain.Question
	err      error
	deleted  []string
}

func (f *fakeQuestionAPI) CreateQuestion(_ context.Context, _ domain.QuestionInput, _ string) (domain.Question, error) {
	return f.created, f.err
}

func (f *fakeQuestionAPI) ListQuestions(_ context.Context, req domain.PageRequest) (domain.Page[domain.Question], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Page[domain.Question]{}, f.err
	}
	return page(f.pages[req.Page], req.Page), nil
}

func (f *fakeQuestionAPI) SearchQuestions(ctx context.Context, _ string, req domain.PageRequest) (domain.Page[domain.Question], error) {
	return f.ListQuestions(ctx, req)
}

func (f *fakeQuestionAPI) TaggedQuestions(_ context.Context, _ []string, req domain.PageRequest) (domain.Page[domain.Question], error) {
	if f.err != nil {
		return domain.Page[domain.Question]{}, f.err
	}
	return page(f.tagged, req.Page), nil
}

func (f *fakeQuestionAPI) UnansweredQuestions(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Question], error) {
	return f.ListQuestions(ctx, req)
}

func (f *fakeQuestionAPI) RecentQuestions(ctx context.Context, _ int, req domain.PageRequest) (domain.Page[domain.Question], error) {
	return f.ListQuestions(ctx, req)
}

func (f *fakeQuestionAPI) GetQuestion(_ context.Context, id, _ string) (backend.QuestionDetail, error) {
	if f.err != nil {
		return backend.QuestionDetail{}, f.err
	}
	if f.detail.Question.ID != id {
		return backend.QuestionDetail{}, store.ErrQuestionNotFound
	}
	return f.detail, nil
}

func (f *fakeQuestionAPI) UpdateQuestion(_ context.Context, _ string, _ domain.QuestionInput, _ string) (domain.Question, error) {
	return f.updated, f.err
}

func (f *fakeQuestionAPI) AcceptAnswer(_ context.Context, _, _, _ string) (domain.Question, error) {
	return f.accepted, f.err
}

func (f *fakeQuestionAPI) DeleteQuestion(_ context.Context, id, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return nil
}

// fakeAnswerAPI returns whatever answer it is told to.
type fakeAnswerAPI struct {
	byQuestion map[string][]domain.Answer
	byUser     map[int][]domain.Answer
	answers    map[string]domain.Answer
	err        error
}

func (f *fakeAnswerAPI) CreateAnswer(_ context.Context, in domain.AnswerInput, _ string) (domain.Answer, error) {
	if f.err != nil {
		return domain.Answer{}, f.err
	}
	a := f.answers["new"]
	a.Content = in.Content
	return a, nil
}

func (f *fakeAnswerAPI) GetAnswer(_ context.Context, id string) (domain.Answer, error) {
	if a, ok := f.answers[id]; ok {
		return a, nil
	}
	return domain.Answer{}, store.ErrAnswerNotFound
}

func (f *fakeAnswerAPI) AnswersForQuestion(_ context.Context, questionID string) ([]domain.Answer, error) {
	return f.byQuestion[questionID], f.err
}

func (f *fakeAnswerAPI) AnswersByUser(_ context.Context, _ string, req domain.PageRequest) (domain.Page[domain.Answer], error) {
	return page(f.byUser[req.Page], req.Page), f.err
}

func (f *fakeAnswerAPI) UpdateAnswer(_ context.Context, id, content, _ string) (domain.Answer, error) {
	a := f.answers[id]
	a.Content = content
	return a, f.err
}

func (f *fakeAnswerAPI) MarkAccepted(_ context.Context, id, _ string) (domain.Answer, error) {
	if f.err != nil {
		return domain.Answer{}, f.err
	}
	return f.answers[id], nil
}

func (f *fakeAnswerAPI) DeleteAnswer(_ context.Context, _, _ string) error {
	return f.err
}

// fakeVoteAPI keeps a server-side tally per answer and a vote per user.
type fakeVoteAPI struct {
	mu     sync.Mutex
	votes  map[string]domain.VoteType
	scores map[string]domain.VoteScore
	calls  int
	err    error
	// hold, when set, parks CastVote until it is closed; arrived is signalled first.
	hold    chan struct{}
	arrived chan struct{}
}

func newFakeVoteAPI() *fakeVoteAPI {
	return &fakeVoteAPI{
		votes:  make(map[string]domain.VoteType),
		scores: make(map[string]domain.VoteScore),
	}
}

func (f *fakeVoteAPI) tally(answerID string) domain.VoteScore {
	var up, down int
	for key, v := range f.votes {
		if !strings.HasPrefix(key, answerID+"/") {
			continue
		}
		switch v {
		case domain.Upvote:
			up++
		case domain.Downvote:
			down++
		}
	}
	// The server adds reputation weight the client cannot reproduce.
	score := domain.VoteScore{Score: (up-down)*10 + 3, Upvotes: up, Downvotes: down}
	f.scores[answerID] = score
	return score
}

func (f *fakeVoteAPI) CastVote(_ context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error) {
	if f.hold != nil {
		close(f.arrived)
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.VoteScore{}, f.err
	}
	f.votes[answerID+"/"+userID] = vote
	return f.tally(answerID), nil
}

func (f *fakeVoteAPI) RemoveVote(_ context.Context, answerID, userID string) (domain.VoteScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.VoteScore{}, f.err
	}
	delete(f.votes, answerID+"/"+userID)
	return f.tally(answerID), nil
}

func (f *fakeVoteAPI) VoteScore(_ context.Context, answerID string) (domain.VoteScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.VoteScore{}, f.err
	}
	return f.tally(answerID), nil
}

func (f *fakeVoteAPI) UserVote(_ context.Context, answerID, userID string) (domain.VoteType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.VoteNone, f.err
	}
	return f.votes[answerID+"/"+userID], nil
}

// fakeTagAPI serves a fixed tag list.
type fakeTagAPI struct {
	tags     []domain.Tag
	search   []domain.Tag
	lastSort string
	err      error
}

func (f *fakeTagAPI) ListTags(_ context.Context, req domain.PageRequest) (domain.Page[domain.Tag], error) {
	f.lastSort = req.SortBy + ":" + string(req.Dir)
	return page(f.tags, req.Page), f.err
}

func (f *fakeTagAPI) SearchTags(_ context.Context, _ string) ([]domain.Tag, error) {
	return f.search, f.err
}

func (f *fakeTagAPI) PopularTags(_ context.Context, limit int) ([]domain.Tag, error) {
	if limit < len(f.tags) {
		return f.tags[:limit], f.err
	}
	return f.tags, f.err
}

func (f *fakeTagAPI) GetTag(_ context.Context, id string) (domain.Tag, error) {
	for _, t := range f.tags {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Tag{}, store.ErrTagNotFound
}

func (f *fakeTagAPI) GetTagByName(_ context.Context, name string) (domain.Tag, error) {
	for _, t := range f.tags {
		if domain.FoldTag(t.Name) == domain.FoldTag(name) {
			return t, nil
		}
	}
	return domain.Tag{}, store.ErrTagNotFound
}

// fakeNotificationAPI tracks read state server-side.
type fakeNotificationAPI struct {
	mu     sync.Mutex
	pages  map[int][]domain.Notification
	unread []domain.Notification
	count  int64
	err    error
	// hold, when set, parks UnreadNotifications until it is closed; arrived is signalled first.
	hold    chan struct{}
	arrived chan struct{}
}

func (f *fakeNotificationAPI) ListNotifications(_ context.Context, _ string, req domain.PageRequest) (domain.Page[domain.Notification], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return page(f.pages[req.Page], req.Page), f.err
}

func (f *fakeNotificationAPI) UnreadNotifications(_ context.Context, _ string) ([]domain.Notification, error) {
	if f.hold != nil {
		close(f.arrived)
		<-f.hold
	}
	return f.unread, f.err
}

func (f *fakeNotificationAPI) UnreadCount(_ context.Context, _ string) (int64, error) {
	return f.count, f.err
}

func (f *fakeNotificationAPI) MarkNotificationRead(_ context.Context, id, _ string) error {
	if f.err != nil {
		return f.err
	}
	if id == "missing" {
		return errors.NotFoundf("notification %s not found", id)
	}
	return nil
}

func (f *fakeNotificationAPI) MarkAllNotificationsRead(_ context.Context, _ string) error {
	return f.err
}

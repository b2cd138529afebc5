package api

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/domain"
	domainerrors "github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/search"
	"github.com/stackitapp/stackit-sync/internal/session"
	"github.com/stackitapp/stackit-sync/internal/transport"
)

type fakeSession struct {
	mu       sync.Mutex
	identity *domain.Identity
	password string
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity != nil {
		return session.StateAuthenticated
	}
	return session.StateAnonymous
}

func (f *fakeSession) Identity() (domain.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return domain.Identity{}, false
	}
	return *f.identity, true
}

func (f *fakeSession) UserID() string {
	id, _ := f.Identity()
	return id.ID
}

func (f *fakeSession) SignIn(_ context.Context, creds session.Credentials) (domain.Identity, error) {
	if creds.Password != f.password {
		return domain.Identity{}, &backend.RequestError{Op: "login", Method: "POST", Status: 401, Message: "Invalid username or password"}
	}
	id := domain.Identity{User: domain.User{ID: "42", Username: creds.Login}}
	f.mu.Lock()
	f.identity = &id
	f.mu.Unlock()
	return id, nil
}

func (f *fakeSession) SignUp(_ context.Context, reg session.Registration) (domain.Identity, error) {
	if len(reg.Password) < 6 {
		return domain.Identity{}, domainerrors.ValidationWithDetails("password must be at least 6 characters",
			map[string]string{"password": "must be at least 6 characters"})
	}
	id := domain.Identity{User: domain.User{ID: "43", Username: reg.Username}, Email: reg.Email}
	f.mu.Lock()
	f.identity = &id
	f.mu.Unlock()
	return id, nil
}

func (f *fakeSession) SignOut() {
	f.mu.Lock()
	f.identity = nil
	f.mu.Unlock()
}

func (f *fakeSession) signIn(id, username string) {
	f.mu.Lock()
	f.identity = &domain.Identity{User: domain.User{ID: id, Username: username}}
	f.mu.Unlock()
}

type fakeQuestions struct {
	cached   []domain.Question
	remote   map[string]domain.Question
	fetches  []domain.PageRequest
	created  []domain.QuestionInput
	accepted [][2]string
}

func (f *fakeQuestions) List() []domain.Question { return f.cached }

func (f *fakeQuestions) Get(id string) (domain.Question, bool) {
	for _, q := range f.cached {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (f *fakeQuestions) Cursor() domain.Cursor { return domain.Cursor{Page: 0, Size: 20} }

func (f *fakeQuestions) FetchPage(_ context.Context, req domain.PageRequest, _ bool) ([]domain.Question, error) {
	f.fetches = append(f.fetches, req)
	f.cached = []domain.Question{{ID: "q-remote", Title: "From the backend"}}
	return f.cached, nil
}

func (f *fakeQuestions) FetchByID(_ context.Context, id, _ string) (domain.Question, error) {
	if q, ok := f.remote[id]; ok {
		return q, nil
	}
	return domain.Question{}, &backend.RequestError{Op: "get question", Method: "GET", Status: 404, Message: "Question not found"}
}

func (f *fakeQuestions) Create(_ context.Context, in domain.QuestionInput, userID string) (domain.Question, error) {
	f.created = append(f.created, in)
	return domain.Question{ID: "q-new", Title: in.Title, Tags: in.Tags, Author: domain.User{ID: userID}}, nil
}

func (f *fakeQuestions) AcceptAnswer(_ context.Context, questionID, answerID, _ string) (domain.Question, error) {
	f.accepted = append(f.accepted, [2]string{questionID, answerID})
	return domain.Question{ID: questionID, AcceptedAnswerID: answerID, HasAcceptedAnswer: true}, nil
}

type fakeAnswers struct {
	cached  map[string][]domain.Answer
	fetched []string
	created []domain.AnswerInput
}

func (f *fakeAnswers) ForQuestion(questionID string) []domain.Answer { return f.cached[questionID] }

func (f *fakeAnswers) FetchForQuestion(_ context.Context, questionID string) ([]domain.Answer, error) {
	f.fetched = append(f.fetched, questionID)
	return []domain.Answer{{ID: "a-remote", QuestionID: questionID}}, nil
}

func (f *fakeAnswers) Create(_ context.Context, in domain.AnswerInput, _ string) (domain.Answer, error) {
	f.created = append(f.created, in)
	return domain.Answer{ID: "a-new", QuestionID: in.QuestionID, Content: in.Content}, nil
}

type fakeVotes struct {
	votes map[string]domain.VoteType
}

func (f *fakeVotes) ToggleVote(_ context.Context, answerID string, vote domain.VoteType, _ string) (domain.VoteScore, error) {
	f.votes[answerID] = f.votes[answerID].Toggle(vote)
	switch f.votes[answerID] {
	case domain.Upvote:
		return domain.VoteScore{Score: 1, Upvotes: 1}, nil
	case domain.Downvote:
		return domain.VoteScore{Score: -1, Downvotes: 1}, nil
	default:
		return domain.VoteScore{}, nil
	}
}

func (f *fakeVotes) UserVote(answerID string) domain.VoteType { return f.votes[answerID] }

type fakeNotifications struct {
	list      []domain.Notification
	markedAll bool
}

func (f *fakeNotifications) List() []domain.Notification { return f.list }

func (f *fakeNotifications) Unread() []domain.Notification {
	var out []domain.Notification
	for _, n := range f.list {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotifications) UnreadCount() int64 { return int64(len(f.Unread())) }

func (f *fakeNotifications) Stats() domain.NotificationStats {
	return domain.NotificationStats{Total: len(f.list), Unread: len(f.Unread())}
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, id, _ string) error {
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].IsRead = true
			return nil
		}
	}
	return domainerrors.NotFoundf("notification %s not found", id)
}

func (f *fakeNotifications) MarkAllAsRead(context.Context, string) error {
	f.markedAll = true
	for i := range f.list {
		f.list[i].IsRead = true
	}
	return nil
}

type fakeTags struct{ tags []domain.Tag }

func (f *fakeTags) List() []domain.Tag { return f.tags }

func (f *fakeTags) Popular(_ context.Context, limit int) ([]domain.Tag, error) {
	return f.tags[:min(limit, len(f.tags))], nil
}

func (f *fakeTags) Suggest(_ context.Context, input string) []domain.Tag {
	var out []domain.Tag
	for _, t := range f.tags {
		if len(input) >= 2 && len(t.Name) >= len(input) && t.Name[:len(input)] == input {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeTags) Stats() domain.TagStats { return domain.TagStats{Total: len(f.tags)} }

type fakePush struct {
	watched []string
	typing  map[string][]string
	sent    []string
	online  []string
}

func (f *fakePush) WatchQuestion(id string) { f.watched = append(f.watched, id) }

func (f *fakePush) UnwatchQuestion(id string) {
	f.watched = slices.DeleteFunc(f.watched, func(w string) bool { return w == id })
}

func (f *fakePush) Typing(id string) []string { return f.typing[id] }

func (f *fakePush) SendTyping(questionID, username string, isTyping bool) error {
	if !isTyping {
		return domainerrors.NotConnected("push transport is not connected")
	}
	f.sent = append(f.sent, questionID+":"+username)
	return nil
}

func (f *fakePush) OnlineUsers() []string { return f.online }

type fakeSearch struct {
	last search.SearchParams
}

func (f *fakeSearch) Search(_ context.Context, params search.SearchParams) (*search.SearchResult, error) {
	f.last = params
	return &search.SearchResult{Query: params.Query, Total: 1, Hits: []search.SearchHit{{ID: "q1", Title: "Goroutine leaks"}}}, nil
}

func (f *fakeSearch) DocumentCount() (uint64, error) { return 3, nil }

type fakeTransport struct{ state transport.State }

func (f fakeTransport) State() transport.State { return f.state }

type fakeFeed struct{ n int }

func (f fakeFeed) ClientCount() int { return f.n }

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingObserver) ObserveAPI(method, route string, _ int, _ time.Duration) {
	r.mu.Lock()
	r.routes = append(r.routes, method+" "+route)
	r.mu.Unlock()
}

type fakeFiles struct {
	uploaded map[string][]byte
}

func (f *fakeFiles) Policy(context.Context) (domain.UploadInfo, error) {
	return domain.UploadInfo{MaxFileSize: 1 << 20, MaxFileSizeMB: 1, AllowedTypes: []string{"image/png", "text/plain"}}, nil
}

func (f *fakeFiles) Upload(_ context.Context, name, declaredType string, content io.Reader, _ backend.ProgressFunc) (domain.UploadResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return domain.UploadResult{}, err
	}
	if name == "evil..txt" {
		return domain.UploadResult{}, domainerrors.ValidationWithDetails("Invalid file name", []string{"Invalid file name"})
	}
	f.uploaded[name] = data
	return domain.UploadResult{FileName: name, FileSize: int64(len(data)), ContentType: declaredType, FileURL: "/uploads/" + name}, nil
}

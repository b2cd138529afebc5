package api

import (
	"context"
	"io"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/search"
	"github.com/stackitapp/stackit-sync/internal/session"
	"github.com/stackitapp/stackit-sync/internal/transport"
)

// SessionService is the session provider surface the API drives.
type SessionService interface {
	State() session.State
	Identity() (domain.Identity, bool)
	UserID() string
	SignIn(ctx context.Context, creds session.Credentials) (domain.Identity, error)
	SignUp(ctx context.Context, reg session.Registration) (domain.Identity, error)
	SignOut()
}

// QuestionService is the question store surface.
type QuestionService interface {
	List() []domain.Question
	Get(id string) (domain.Question, bool)
	Cursor() domain.Cursor
	FetchPage(ctx context.Context, req domain.PageRequest, reset bool) ([]domain.Question, error)
	FetchByID(ctx context.Context, id, currentUserID string) (domain.Question, error)
	Create(ctx context.Context, in domain.QuestionInput, userID string) (domain.Question, error)
	AcceptAnswer(ctx context.Context, questionID, answerID, currentUserID string) (domain.Question, error)
}

// AnswerService is the answer store surface.
type AnswerService interface {
	ForQuestion(questionID string) []domain.Answer
	FetchForQuestion(ctx context.Context, questionID string) ([]domain.Answer, error)
	Create(ctx context.Context, in domain.AnswerInput, userID string) (domain.Answer, error)
}

// VoteService is the vote store surface.
type VoteService interface {
	ToggleVote(ctx context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error)
	UserVote(answerID string) domain.VoteType
}

// NotificationService is the notification store surface.
type NotificationService interface {
	List() []domain.Notification
	Unread() []domain.Notification
	UnreadCount() int64
	Stats() domain.NotificationStats
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
}

// TagService is the tag store surface.
type TagService interface {
	List() []domain.Tag
	Popular(ctx context.Context, limit int) ([]domain.Tag, error)
	Suggest(ctx context.Context, input string) []domain.Tag
	Stats() domain.TagStats
}

// PushService is the push router surface.
type PushService interface {
	WatchQuestion(questionID string)
	UnwatchQuestion(questionID string)
	Typing(questionID string) []string
	SendTyping(questionID, username string, isTyping bool) error
	OnlineUsers() []string
}

// FileService is the upload surface.
type FileService interface {
	Policy(ctx context.Context) (domain.UploadInfo, error)
	Upload(ctx context.Context, name, declaredType string, content io.Reader, progress backend.ProgressFunc) (domain.UploadResult, error)
}

// Searcher is the local question index.
type Searcher interface {
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
	DocumentCount() (uint64, error)
}

// ConnectionStatus reports the push transport state.
type ConnectionStatus interface {
	State() transport.State
}

// FeedStatus reports change feed subscribers.
type FeedStatus interface {
	ClientCount() int
}

// Services bundles what the handlers call. Nil members disable the
// dependent health component; handlers assume their service is present.
type Services struct {
	Session       SessionService
	Questions     QuestionService
	Answers       AnswerService
	Votes         VoteService
	Notifications NotificationService
	Tags          TagService
	Push          PushService
	Files         FileService
	Search        Searcher
	Transport     ConnectionStatus
	Feed          FeedStatus
}

package normalize

import (
	"strings"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// Question converts a QuestionResponse.
func Question(q wire.Question) domain.Question {
	out := domain.Question{
		Syncable:          domain.Syncable{CreatedAt: q.CreatedAt.Time, UpdatedAt: q.UpdatedAt.Time},
		ID:                string(q.ID),
		Title:             strings.TrimSpace(q.Title),
		Description:       Markdown(firstNonEmpty(q.Description, q.Content)),
		Tags:              TagNames(q.Tags),
		Author:            Author(q.User, q.Author),
		Score:             q.Score,
		ViewCount:         q.ViewCount,
		AnswerCount:       q.AnswerCount,
		AcceptedAnswerID:  string(q.AcceptedAnswerID),
		HasAcceptedAnswer: q.HasAcceptedAnswer || q.AcceptedAnswerID != "",
		IsClosed:          q.IsClosed,
		CloseReason:       q.CloseReason,
		IsActive:          q.IsActive == nil || *q.IsActive,
	}
	if q.VoteCount != nil && q.Score == 0 {
		out.Score = *q.VoteCount
	}
	if len(q.Answers) > out.AnswerCount {
		out.AnswerCount = len(q.Answers)
	}
	return out
}

// Answer converts an AnswerResponse. fallbackQuestionID fills questionId when the
// payload omits it, which happens on answers embedded in a question.
func Answer(a wire.Answer, fallbackQuestionID string) domain.Answer {
	vote, _ := domain.ParseVoteType(a.CurrentUserVote)
	questionID := string(a.QuestionID)
	if questionID == "" {
		questionID = fallbackQuestionID
	}
	return domain.Answer{
		Syncable:        domain.Syncable{CreatedAt: a.CreatedAt.Time, UpdatedAt: a.UpdatedAt.Time},
		ID:              string(a.ID),
		QuestionID:      questionID,
		Content:         Markdown(a.Content),
		Author:          Author(a.User, a.Author),
		Score:           a.Score,
		UpvoteCount:     a.UpvoteCount,
		DownvoteCount:   a.DownvoteCount,
		CurrentUserVote: vote,
		IsAccepted:      a.IsAccepted,
		IsActive:        a.IsActive == nil || *a.IsActive,
		EditedAt:        a.EditedAt.Ptr(),
	}
}

// Answers converts a list of answers.
func Answers(list []wire.Answer, fallbackQuestionID string) []domain.Answer {
	out := make([]domain.Answer, 0, len(list))
	for _, a := range list {
		out = append(out, Answer(a, fallbackQuestionID))
	}
	return out
}

// Tag converts a TagResponse.
func Tag(t wire.Tag) domain.Tag {
	return domain.Tag{
		ID:          string(t.ID),
		Name:        strings.TrimSpace(t.Name),
		Description: strings.TrimSpace(t.Description),
		UsageCount:  t.UsageCount,
		CreatedAt:   t.CreatedAt.Time,
	}
}

// Tags converts a list of tags.
func Tags(list []wire.Tag) []domain.Tag {
	out := make([]domain.Tag, 0, len(list))
	for _, t := range list {
		out = append(out, Tag(t))
	}
	return out
}

// Notification converts a NotificationResponse.
func Notification(n wire.Notification) domain.Notification {
	out := domain.Notification{
		ID:            string(n.ID),
		RecipientID:   firstNonEmpty(string(n.RecipientID), string(n.UserID)),
		Type:          domain.NotificationType(strings.ToUpper(n.Type)),
		Message:       n.Message,
		ReferenceID:   string(n.ReferenceID),
		ReferenceType: n.ReferenceType,
		ActionURL:     n.ActionURL,
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt.Ptr(),
		CreatedAt:     n.CreatedAt.Time,
	}
	if n.TriggeredByUser != nil {
		u := User(n.TriggeredByUser)
		out.TriggeredBy = &u
	}
	return out
}

// Cursor maps a page envelope onto the pagination cursor.
func Cursor[T any](p wire.Page[T]) domain.Cursor {
	return domain.Cursor{
		Page:          p.Number,
		Size:          p.Size,
		TotalPages:    p.TotalPages,
		TotalElements: p.TotalElements,
		HasNext:       !p.Last,
		HasPrevious:   !p.First,
	}
}

// Page converts a whole page envelope with the given item converter.
func Page[W, D any](p wire.Page[W], convert func(W) D) domain.Page[D] {
	items := make([]D, 0, len(p.Content))
	for _, w := range p.Content {
		items = append(items, convert(w))
	}
	return domain.Page[D]{Items: items, Cursor: Cursor(p)}
}

// VoteScore converts a score payload.
func VoteScore(s wire.VoteScore) domain.VoteScore {
	return domain.VoteScore{Score: s.Score, Upvotes: s.Upvotes, Downvotes: s.Downvotes}
}

// UploadInfo converts the upload policy.
func UploadInfo(i wire.UploadInfo) domain.UploadInfo {
	info := domain.UploadInfo{
		MaxFileSize:   i.MaxFileSize,
		MaxFileSizeMB: i.MaxFileSizeMB,
		AllowedTypes:  make([]string, 0, len(i.AllowedTypes)),
	}
	for _, t := range i.AllowedTypes {
		info.AllowedTypes = append(info.AllowedTypes, strings.ToLower(strings.TrimSpace(t)))
	}
	if info.MaxFileSizeMB == 0 && info.MaxFileSize > 0 {
		info.MaxFileSizeMB = float64(info.MaxFileSize) / (1024 * 1024)
	}
	return info
}

// UploadResult converts the upload response.
func UploadResult(r wire.UploadResult) domain.UploadResult {
	return domain.UploadResult(r)
}

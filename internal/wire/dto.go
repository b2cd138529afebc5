package wire

import "encoding/json"

// User is every user shape the backend has sent. Field names overlap across
// migrations: name/displayName/fullName, avatar/avatarUrl, reputation/reputationScore.
type User struct {
	ID              ID     `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	DisplayName     string `json:"displayName"`
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Avatar          string `json:"avatar"`
	AvatarURL       string `json:"avatarUrl"`
	Reputation      *int   `json:"reputation"`
	ReputationScore *int   `json:"reputationScore"`
	Role            string `json:"role"`
	Title           string `json:"title"`
}

// Question is QuestionResponse.
type Question struct {
	ID                ID        `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Content           string    `json:"content"`
	ViewCount         int       `json:"viewCount"`
	IsActive          *bool     `json:"isActive"`
	IsClosed          bool      `json:"isClosed"`
	CloseReason       string    `json:"closeReason"`
	AcceptedAnswerID  ID        `json:"acceptedAnswerId"`
	HasAcceptedAnswer bool      `json:"hasAcceptedAnswer"`
	CreatedAt         Timestamp `json:"createdAt"`
	UpdatedAt         Timestamp `json:"updatedAt"`
	User              *User     `json:"user"`
	Author            *User     `json:"author"`
	Tags              Tags      `json:"tags"`
	AnswerCount       int       `json:"answerCount"`
	Score             int       `json:"score"`
	VoteCount         *int      `json:"voteCount"`
	Answers           []Answer  `json:"answers"`
}

// Answer is AnswerResponse.
type Answer struct {
	ID              ID        `json:"id"`
	Content         string    `json:"content"`
	IsAccepted      bool      `json:"isAccepted"`
	IsActive        *bool     `json:"isActive"`
	CreatedAt       Timestamp `json:"createdAt"`
	UpdatedAt       Timestamp `json:"updatedAt"`
	EditedAt        Timestamp `json:"editedAt"`
	User            *User     `json:"user"`
	Author          *User     `json:"author"`
	QuestionID      ID        `json:"questionId"`
	Score           int       `json:"score"`
	UpvoteCount     int       `json:"upvoteCount"`
	DownvoteCount   int       `json:"downvoteCount"`
	CurrentUserVote string    `json:"currentUserVote"`
}

// Tag is TagResponse.
type Tag struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UsageCount  int       `json:"usageCount"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// Notification is NotificationResponse.
type Notification struct {
	ID              ID        `json:"id"`
	UserID          ID        `json:"userId"`
	RecipientID     ID        `json:"recipientId"`
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	ReferenceID     ID        `json:"referenceId"`
	ReferenceType   string    `json:"referenceType"`
	IsRead          bool      `json:"isRead"`
	ReadAt          Timestamp `json:"readAt"`
	ActionURL       string    `json:"actionUrl"`
	CreatedAt       Timestamp `json:"createdAt"`
	TriggeredByUser *User     `json:"triggeredByUser"`
}

// Page is Spring's page envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// VoteScore is the vote endpoints' score payload.
type VoteScore struct {
	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// UserVote is the current user's vote on one answer.
type UserVote struct {
	VoteType string `json:"voteType"`
	HasVoted bool   `json:"hasVoted"`
}

// UnreadCount is the notification count payload.
type UnreadCount struct {
	UnreadCount int64 `json:"unreadCount"`
	HasUnread   bool  `json:"hasUnread"`
}

// UploadInfo is the /files/info payload.
type UploadInfo struct {
	MaxFileSize   int64    `json:"maxFileSize"`
	MaxFileSizeMB float64  `json:"maxFileSizeMB"`
	AllowedTypes  []string `json:"allowedTypes"`
}

// UploadResult is the /files/upload payload.
type UploadResult struct {
	FileName    string `json:"fileName"`
	FilePath    string `json:"filePath"`
	FileURL     string `json:"fileUrl"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

// AuthResponse is the envelope returned by /auth endpoints.
type AuthResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// TokenData is the data of a successful login or signup.
type TokenData struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// ErrorBody is the backend's error payload.
type ErrorBody struct {
	Status      int               `json:"status"`
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors"`
	Errors      []string          `json:"errors"`

	// Data carries field errors in the /auth envelope.
	Data json.RawMessage `json:"data"`
}

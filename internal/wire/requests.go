package wire

// CreateQuestion is the body of POST /questions.
type CreateQuestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	UserID      ID       `json:"userId"`
}

// UpdateQuestion is the body of PUT /questions/{id}.
type UpdateQuestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// CreateAnswer is the body of POST /answers.
type CreateAnswer struct {
	Content    string `json:"content"`
	QuestionID ID     `json:"questionId"`
	UserID     ID     `json:"userId"`
}

// UpdateAnswer is the body of PUT /answers/{id}.
type UpdateAnswer struct {
	Content string `json:"content"`
}

// CastVote is the body of POST /votes/answers/{id}.
type CastVote struct {
	VoteType string `json:"voteType"`
	UserID   ID     `json:"userId"`
}

// Login is the body of POST /auth/login.
type Login struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Signup is the body of POST /auth/signup.
type Signup struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName,omitempty"`
}

// TypingMessage is published to /app/question/{id}/typing.
type TypingMessage struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// StatusMessage is published to /app/user/status.
type StatusMessage struct {
	UserID   ID   `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

// PingMessage is published to /app/ping.
type PingMessage struct {
	Timestamp int64 `json:"timestamp"`
}

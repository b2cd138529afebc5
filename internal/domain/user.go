package domain

// Role is the coarse permission level the backend assigns to a user.
type Role string

// Roles known to the backend.
const (
	RoleGuest Role = "GUEST"
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the canonical author/actor reference.
// Every upstream variant (user, author, triggeredByUser) is mapped to this shape on ingestion.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Reputation  int    `json:"reputation"`
}

// IsZero reports whether no author information was present.
func (u User) IsZero() bool {
	return u.ID == "" && u.Username == "" && u.DisplayName == ""
}

// Name returns the best human-readable label for the user.
func (u User) Name() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	default:
		return "Anonymous"
	}
}

// Identity is the authenticated user of the current session.
type Identity struct {
	User
	Email string `json:"email,omitempty"`
}

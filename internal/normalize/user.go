// Package normalize converts raw backend payloads into canonical domain types.
// It is the only place that knows about upstream field-name variants.
package normalize

import (
	"strings"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// User maps every upstream user variant onto domain.User.
// Precedence per field follows the backend's migration order: newest name first.
func User(u *wire.User) domain.User {
	if u == nil {
		return domain.User{}
	}
	out := domain.User{
		ID:          string(u.ID),
		Username:    strings.TrimSpace(u.Username),
		DisplayName: firstNonEmpty(u.DisplayName, u.FullName, u.Name, u.Username),
		AvatarURL:   firstNonEmpty(u.AvatarURL, u.Avatar),
		Role:        role(firstNonEmpty(u.Role, u.Title)),
	}
	switch {
	case u.ReputationScore != nil:
		out.Reputation = *u.ReputationScore
	case u.Reputation != nil:
		out.Reputation = *u.Reputation
	}
	return out
}

// Author picks whichever of the user/author keys the payload used.
func Author(user, author *wire.User) domain.User {
	if user != nil {
		return User(user)
	}
	return User(author)
}

// Identity maps the /auth/me payload onto the session identity.
func Identity(u *wire.User) domain.Identity {
	if u == nil {
		return domain.Identity{}
	}
	return domain.Identity{User: User(u), Email: strings.TrimSpace(u.Email)}
}

func role(s string) domain.Role {
	switch strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "ROLE_")) {
	case "ADMIN":
		return domain.RoleAdmin
	case "GUEST":
		return domain.RoleGuest
	case "USER":
		return domain.RoleUser
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

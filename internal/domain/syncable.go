package domain

import "time"

// Syncable carries the server-assigned timestamps used to order competing writes.
// Every entity the stores hold embeds it.
type Syncable struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Version returns the timestamp that orders writes to this entity.
// A zero Version means the server sent no timestamps and the write is never considered stale.
func (s Syncable) Version() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Newer reports whether a is strictly newer than b. Zero versions are never newer or older.
func Newer(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a.After(b)
}

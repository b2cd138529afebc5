package push

import (
	"maps"
	"slices"
	"sync"
)

// TypingTracker holds who is typing on which question.
// A question with nobody typing has no entry.
type TypingTracker struct {
	mu     sync.RWMutex
	typing map[string]map[string]struct{}
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{typing: make(map[string]map[string]struct{})}
}

// Apply records one indicator and reports whether the set changed.
func (t *TypingTracker) Apply(questionID, username string, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[questionID]
	_, present := users[username]
	switch {
	case isTyping && !present:
		if users == nil {
			users = make(map[string]struct{})
			t.typing[questionID] = users
		}
		users[username] = struct{}{}
		return true
	case !isTyping && present:
		delete(users, username)
		if len(users) == 0 {
			delete(t.typing, questionID)
		}
		return true
	}
	return false
}

// Users returns the sorted usernames typing on questionID.
func (t *TypingTracker) Users(questionID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.typing[questionID]))
}

// AnyoneTyping reports whether anybody is typing on questionID.
func (t *TypingTracker) AnyoneTyping(questionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.typing[questionID]) > 0
}

// ClearQuestion drops the set of one question and reports whether it existed.
func (t *TypingTracker) ClearQuestion(questionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[questionID]
	delete(t.typing, questionID)
	return ok
}

// Clear drops every set and returns the questions that had one.
func (t *TypingTracker) Clear() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	cleared := slices.Sorted(maps.Keys(t.typing))
	clear(t.typing)
	return cleared
}

// Presence maps user ids to their last reported online state.
type Presence struct {
	mu     sync.RWMutex
	online map[string]bool
}

// NewPresence creates an empty presence map.
func NewPresence() *Presence {
	return &Presence{online: make(map[string]bool)}
}

// Set records a status and reports whether it changed.
func (p *Presence) Set(userID string, online bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, known := p.online[userID]
	p.online[userID] = online
	return !known || prev != online
}

// Online reports whether userID was last seen online.
func (p *Presence) Online(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[userID]
}

// OnlineUsers returns the sorted ids currently online.
func (p *Presence) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.online))
	for id, on := range p.online {
		if on {
			users = append(users, id)
		}
	}
	slices.Sort(users)
	return users
}

// Clear forgets every status.
func (p *Presence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.online)
}

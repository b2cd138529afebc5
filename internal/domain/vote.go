package domain

import "fmt"

// VoteType is the direction of a user's vote on an answer. VoteNone means no active vote.
type VoteType string

// Vote directions.
const (
	VoteNone VoteType = ""
	Upvote   VoteType = "UPVOTE"
	Downvote VoteType = "DOWNVOTE"
)

// ParseVoteType accepts the backend's names plus the short forms "up" and "down".
func ParseVoteType(s string) (VoteType, error) {
	switch s {
	case "UPVOTE", "up", "upvote":
		return Upvote, nil
	case "DOWNVOTE", "down", "downvote":
		return Downvote, nil
	case "", "NONE", "none":
		return VoteNone, nil
	default:
		return VoteNone, fmt.Errorf("unknown vote type %q", s)
	}
}

// Toggle returns the vote that results from pressing next when current is active.
// Pressing the active direction again clears it.
func (current VoteType) Toggle(next VoteType) VoteType {
	if current == next {
		return VoteNone
	}
	return next
}

// VoteScore is the shared tally for one answer. It is not per-user.
type VoteScore struct {
	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

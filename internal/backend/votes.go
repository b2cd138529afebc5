package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceVotes = "votes"

// CastVote adds or changes userID's vote on an answer and returns the new tally.
func (c *Client) CastVote(ctx context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error) {
	var out wire.VoteScore
	err := c.do(ctx, call{
		op:       "vote",
		method:   http.MethodPost,
		resource: resourceVotes,
		path:     "/votes/answers/" + escape(answerID),
		body:     wire.CastVote{VoteType: string(vote), UserID: wire.ID(userID)},
		fallback: "Failed to vote on answer",
	}, &out)
	if err != nil {
		return domain.VoteScore{}, err
	}
	return normalize.VoteScore(out), nil
}

// RemoveVote deletes userID's vote on an answer and returns the new tally.
func (c *Client) RemoveVote(ctx context.Context, answerID, userID string) (domain.VoteScore, error) {
	var out wire.VoteScore
	err := c.do(ctx, call{
		op:       "remove vote",
		method:   http.MethodDelete,
		resource: resourceVotes,
		path:     "/votes/answers/" + escape(answerID),
		query:    url.Values{"userId": {userID}},
		fallback: "Failed to remove vote",
	}, &out)
	if err != nil {
		return domain.VoteScore{}, err
	}
	return normalize.VoteScore(out), nil
}

// VoteScore fetches the current tally of an answer.
func (c *Client) VoteScore(ctx context.Context, answerID string) (domain.VoteScore, error) {
	var out wire.VoteScore
	err := c.do(ctx, call{
		op:       "get score",
		method:   http.MethodGet,
		resource: resourceVotes,
		path:     "/votes/answers/" + escape(answerID) + "/score",
		fallback: "Failed to get answer score",
	}, &out)
	if err != nil {
		return domain.VoteScore{}, err
	}
	return normalize.VoteScore(out), nil
}

// UserVote fetches userID's current vote on an answer.
func (c *Client) UserVote(ctx context.Context, answerID, userID string) (domain.VoteType, error) {
	var out wire.UserVote
	err := c.do(ctx, call{
		op:       "get user vote",
		method:   http.MethodGet,
		resource: resourceVotes,
		path:     "/votes/answers/" + escape(answerID) + "/user/" + escape(userID),
		fallback: "Failed to get user vote",
	}, &out)
	if err != nil {
		return domain.VoteNone, err
	}
	if !out.HasVoted && out.VoteType == "" {
		return domain.VoteNone, nil
	}
	vote, err := domain.ParseVoteType(out.VoteType)
	if err != nil {
		return domain.VoteNone, &RequestError{Op: "get user vote", Method: http.MethodGet, Status: http.StatusOK, Message: "Failed to get user vote", cause: err}
	}
	return vote, nil
}

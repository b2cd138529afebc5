package store

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// VoteAPI is the slice of the backend client the vote store uses.
type VoteAPI interface {
	CastVote(ctx context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error)
	RemoveVote(ctx context.Context, answerID, userID string) (domain.VoteScore, error)
	VoteScore(ctx context.Context, answerID string) (domain.VoteScore, error)
	UserVote(ctx context.Context, answerID, userID string) (domain.VoteType, error)
}

// ScoreSink receives every server-confirmed score. ApplyScoreValue carries
// pushed scores, which arrive without vote counts.
type ScoreSink interface {
	ApplyScore(answerID string, score domain.VoteScore)
	ApplyScoreValue(answerID string, score int)
}

// preloadConcurrency bounds LoadVoteData's parallel requests.
const preloadConcurrency = 4

// VoteStore holds two independent maps: the current user's vote per answer
// and the shared score per answer. Votes are not entities.
type VoteStore struct {
	loading
	api    VoteAPI
	scores ScoreSink
	deps   Deps

	mu        sync.RWMutex
	epoch     uint64
	userVotes map[string]domain.VoteType
	tallies   map[string]domain.VoteScore
}

// NewVoteStore creates a vote store. scores may be nil.
func NewVoteStore(api VoteAPI, scores ScoreSink, deps Deps) *VoteStore {
	return &VoteStore{
		api:       api,
		scores:    scores,
		deps:      deps.withDefaults(),
		userVotes: make(map[string]domain.VoteType),
		tallies:   make(map[string]domain.VoteScore),
	}
}

// ToggleVote presses vote on an answer: the active direction is removed,
// anything else is cast. The user-vote map changes only after the server accepts.
func (s *VoteStore) ToggleVote(ctx context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error) {
	if s.UserVote(answerID) == vote {
		return s.RemoveVote(ctx, answerID, userID)
	}
	return s.Vote(ctx, answerID, vote, userID)
}

// Vote casts or changes the user's vote.
func (s *VoteStore) Vote(ctx context.Context, answerID string, vote domain.VoteType, userID string) (domain.VoteScore, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	score, err := s.api.CastVote(ctx, answerID, vote, userID)
	if err != nil {
		return domain.VoteScore{}, err
	}
	s.setUserVote(epoch, userID, answerID, vote)
	s.setScore(answerID, score)
	return score, nil
}

// RemoveVote withdraws the user's vote.
func (s *VoteStore) RemoveVote(ctx context.Context, answerID, userID string) (domain.VoteScore, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	score, err := s.api.RemoveVote(ctx, answerID, userID)
	if err != nil {
		return domain.VoteScore{}, err
	}
	s.setUserVote(epoch, userID, answerID, domain.VoteNone)
	s.setScore(answerID, score)
	return score, nil
}

// FetchScore refreshes one answer's tally.
func (s *VoteStore) FetchScore(ctx context.Context, answerID string) (domain.VoteScore, error) {
	defer s.start()()

	score, err := s.api.VoteScore(ctx, answerID)
	if err != nil {
		return domain.VoteScore{}, err
	}
	s.setScore(answerID, score)
	return score, nil
}

// FetchUserVote refreshes the user's vote on one answer.
func (s *VoteStore) FetchUserVote(ctx context.Context, answerID, userID string) (domain.VoteType, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	vote, err := s.api.UserVote(ctx, answerID, userID)
	if err != nil {
		return domain.VoteNone, err
	}
	s.setUserVote(epoch, userID, answerID, vote)
	return vote, nil
}

// LoadVoteData preloads scores, and user votes when userID is set, for
// answerIDs. Per-answer failures are logged and skipped.
func (s *VoteStore) LoadVoteData(ctx context.Context, answerIDs []string, userID string) {
	defer s.start()()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, answerID := range answerIDs {
		g.Go(func() error {
			if _, err := s.FetchScore(gctx, answerID); err != nil {
				s.deps.Logger.Debug("vote score preload failed",
					slog.String("answer_id", answerID),
					slog.String("error", err.Error()))
			}
			if userID == "" {
				return nil
			}
			if _, err := s.FetchUserVote(gctx, answerID, userID); err != nil {
				s.deps.Logger.Debug("user vote preload failed",
					slog.String("answer_id", answerID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ApplyScore records a pushed score. Only the score map changes; vote
// counts are kept from the last full tally.
func (s *VoteStore) ApplyScore(change domain.ScoreChange) {
	s.mu.Lock()
	score := s.tallies[change.AnswerID]
	score.Score = change.NewScore
	s.tallies[change.AnswerID] = score
	s.mu.Unlock()

	if s.scores != nil {
		s.scores.ApplyScoreValue(change.AnswerID, change.NewScore)
	}
	s.deps.Emitter.Emit(sse.NewScoreChangedEvent(change.AnswerID, score))
}

// UserVote returns the user's cached vote on an answer.
func (s *VoteStore) UserVote(answerID string) domain.VoteType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userVotes[answerID]
}

// Score returns the cached tally of an answer, zero when unknown.
func (s *VoteStore) Score(answerID string) domain.VoteScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tallies[answerID]
}

// UserVotes returns a copy of the user-vote map.
func (s *VoteStore) UserVotes() map[string]domain.VoteType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.userVotes)
}

// ClearVoteData drops both maps. It runs on every identity change. Requests
// started before the clear no longer write the user-vote map.
func (s *VoteStore) ClearVoteData() {
	s.mu.Lock()
	s.epoch++
	s.userVotes = make(map[string]domain.VoteType)
	s.tallies = make(map[string]domain.VoteScore)
	s.mu.Unlock()

	s.deps.Emitter.Emit(sse.NewVotesClearedEvent())
}

func (s *VoteStore) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *VoteStore) setUserVote(epoch uint64, userID, answerID string, vote domain.VoteType) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.deps.Logger.Debug("dropped user vote from a previous session",
			slog.String("answer_id", answerID))
		return
	}
	if vote == domain.VoteNone {
		delete(s.userVotes, answerID)
	} else {
		s.userVotes[answerID] = vote
	}
	s.mu.Unlock()

	s.deps.Emitter.Emit(sse.NewUserVoteChangedEvent(userID, answerID, vote))
}

func (s *VoteStore) setScore(answerID string, score domain.VoteScore) {
	s.mu.Lock()
	s.tallies[answerID] = score
	s.mu.Unlock()

	if s.scores != nil {
		s.scores.ApplyScore(answerID, score)
	}
	s.deps.Emitter.Emit(sse.NewScoreChangedEvent(answerID, score))
}

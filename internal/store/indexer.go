package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

const indexTimeout = 10 * time.Second

type indexOp int

const (
	opIndex indexOp = iota
	opDelete
)

// indexQueue feeds the search index from a single worker. Jobs carry ids
// only; the worker indexes whatever the store holds when the job runs, so
// a slow index never sees writes out of order and a deleted question is
// never put back. Pending jobs for one id coalesce, the latest op winning.
type indexQueue struct {
	deps   Deps
	lookup func(id string) (domain.Question, bool)

	mu      sync.Mutex
	pending map[string]indexOp
	order   []string
	running bool
}

func newIndexQueue(deps Deps, lookup func(id string) (domain.Question, bool)) *indexQueue {
	return &indexQueue{
		deps:    deps,
		lookup:  lookup,
		pending: make(map[string]indexOp),
	}
}

func (q *indexQueue) index(questions ...domain.Question) {
	ids := make([]string, 0, len(questions))
	for _, qu := range questions {
		ids = append(ids, qu.ID)
	}
	q.enqueue(opIndex, ids...)
}

func (q *indexQueue) remove(id string) {
	q.enqueue(opDelete, id)
}

func (q *indexQueue) enqueue(op indexOp, ids ...string) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	for _, id := range ids {
		if _, queued := q.pending[id]; !queued {
			q.order = append(q.order, id)
		}
		q.pending[id] = op
	}
	start := !q.running
	q.running = true
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// drain runs until the queue is empty.
func (q *indexQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.order) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		batch, ops := q.order, q.pending
		q.order, q.pending = nil, make(map[string]indexOp)
		q.mu.Unlock()

		var upserts []domain.Question
		var deletes []string
		for _, id := range batch {
			if held, ok := q.lookup(id); ok {
				upserts = append(upserts, held)
			} else if ops[id] == opDelete {
				deletes = append(deletes, id)
			}
		}
		q.apply(upserts, deletes)
	}
}

func (q *indexQueue) apply(upserts []domain.Question, deletes []string) {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	if len(upserts) > 0 {
		if err := q.deps.Search.IndexQuestions(ctx, upserts); err != nil {
			q.deps.Logger.Warn("search index update failed",
				slog.Int("questions", len(upserts)),
				slog.String("error", err.Error()))
		}
	}
	for _, id := range deletes {
		if err := q.deps.Search.DeleteQuestion(ctx, id); err != nil {
			q.deps.Logger.Warn("search index delete failed",
				slog.String("question_id", id),
				slog.String("error", err.Error()))
		}
	}
}

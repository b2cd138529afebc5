// Package store holds the client-side resource stores. Each store owns a
// normalized collection, issues REST calls through the backend client, and
// merges push events into the same collection under version checks.
package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

// EventEmitter is the interface for emitting change feed events.
// Stores use this to broadcast changes without depending on SSE implementation details.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// SearchIndexer keeps the local question index in sync with the question store.
// The question store calls it from a background worker.
type SearchIndexer interface {
	IndexQuestions(ctx context.Context, questions []domain.Question) error
	DeleteQuestion(ctx context.Context, questionID string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexQuestions is a no-op.
func (NoopSearchIndexer) IndexQuestions(context.Context, []domain.Question) error { return nil }

// DeleteQuestion is a no-op.
func (NoopSearchIndexer) DeleteQuestion(context.Context, string) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer for testing.
func NewNoopSearchIndexer() SearchIndexer {
	return NoopSearchIndexer{}
}

// StaleObserver is told about every write rejected by a version check.
type StaleObserver interface {
	StaleRejected(collection string)
}

// Deps are the collaborators shared by every store.
type Deps struct {
	Logger  *slog.Logger
	Emitter EventEmitter
	Search  SearchIndexer
	Stale   StaleObserver
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Emitter == nil {
		d.Emitter = NoopEmitter{}
	}
	if d.Search == nil {
		d.Search = NoopSearchIndexer{}
	}
	return d
}

// staleHook returns the collection callback that logs and counts stale writes.
func (d Deps) staleHook() func(collection, id string) {
	return func(collection, id string) {
		d.Logger.Debug("stale write rejected",
			slog.String("collection", collection),
			slog.String("id", id))
		if d.Stale != nil {
			d.Stale.StaleRejected(collection)
		}
	}
}

// Outcome describes what a merge did to the collection.
type Outcome int

const (
	// Stale means the incoming entity was older than the held one and was dropped.
	Stale Outcome = iota
	// Inserted means the id was new.
	Inserted
	// Updated means an existing entity was replaced.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "stale"
	}
}

// loading is an advisory in-flight counter.
type loading struct {
	n atomic.Int32
}

func (l *loading) start() func() {
	l.n.Add(1)
	return func() { l.n.Add(-1) }
}

// Loading reports whether any network operation of the store is in flight.
func (l *loading) Loading() bool {
	return l.n.Load() > 0
}

package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/metrics"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := drainContext()
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the change feed manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	manager := sse.NewManager(log.Component("sse"))
	manager.SetDropObserver(m)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("Change feed started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// BackendHandle wraps the REST client with shutdown capability.
type BackendHandle struct {
	*backend.Client
}

// Shutdown implements do.Shutdownable.
func (h *BackendHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideBackend provides the StackIt REST client. The session provider
// installs itself as the token source when it is built.
func ProvideBackend(i do.Injector) (*BackendHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	client := backend.New(backend.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		RPS:        cfg.API.RequestsPerSecond,
		Burst:      cfg.API.Burst,
		MaxRetries: cfg.API.MaxRetries,
		Observer:   m,
	}, log.Component("backend"))

	return &BackendHandle{Client: client}, nil
}

// Stores bundles the resource stores.
type Stores struct {
	Questions     *store.QuestionStore
	Answers       *store.AnswerStore
	Votes         *store.VoteStore
	Tags          *store.TagStore
	Notifications *store.NotificationStore
}

// ProvideStores builds every resource store over the shared backend client.
// Writes are broadcast on the change feed and cached questions are indexed.
func ProvideStores(i do.Injector) (*Stores, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	client := do.MustInvoke[*BackendHandle](i)
	feed := do.MustInvoke[*SSEManagerHandle](i)
	index := do.MustInvoke[*SearchIndexHandle](i)

	deps := func(component string) store.Deps {
		return store.Deps{
			Logger:  log.Component(component),
			Emitter: feed.Manager,
			Search:  index.SearchIndex,
			Stale:   m,
		}
	}

	answers := store.NewAnswerStore(client.Client, deps("answers"))
	stores := &Stores{
		Questions:     store.NewQuestionStore(client.Client, answers, deps("questions")),
		Answers:       answers,
		Votes:         store.NewVoteStore(client.Client, answers, deps("votes")),
		Tags:          store.NewTagStore(client.Client, deps("tags")),
		Notifications: store.NewNotificationStore(client.Client, deps("notifications")),
	}

	log.Info("Resource stores ready")
	return stores, nil
}

package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/files"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/metrics"
	"github.com/stackitapp/stackit-sync/internal/push"
	"github.com/stackitapp/stackit-sync/internal/session"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/transport"
)

// TransportHandle wraps the push transport with shutdown capability.
type TransportHandle struct {
	*transport.Client
	detach func()
}

// Shutdown implements do.Shutdownable.
func (h *TransportHandle) Shutdown() error {
	h.detach()
	h.Disconnect()
	return nil
}

// ProvideTransport provides the STOMP push transport. It stays IDLE until
// the session provider connects it.
func ProvideTransport(i do.Injector) (*TransportHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	feed := do.MustInvoke[*SSEManagerHandle](i)

	tlog := log.Component("transport")
	client := transport.New(transport.Options{
		Endpoints:        cfg.PushURLs(),
		Dialer:           transport.NewStompDialer(cfg.Push.Heartbeat, tlog),
		ReconnectInitial: cfg.Push.ReconnectInitial,
		ReconnectMax:     cfg.Push.ReconnectMax,
		MaxAttempts:      cfg.Push.MaxAttempts,
		Logger:           tlog,
		Observer:         m,
	})

	detach := client.OnStateChange(func(c transport.StateChange) {
		feed.Emit(sse.NewTransportEvent(string(c.Previous), string(c.Current), c.Err))
		if c.Fatal {
			tlog.Error("push reconnect abandoned", slog.Any("error", c.Err))
		}
	})

	return &TransportHandle{Client: client, detach: detach}, nil
}

// RouterHandle wraps the push router with shutdown capability.
type RouterHandle struct {
	*push.Router
}

// Shutdown implements do.Shutdownable.
func (h *RouterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRouter provides the push event router and starts it.
func ProvideRouter(i do.Injector) (*RouterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	feed := do.MustInvoke[*SSEManagerHandle](i)
	tr := do.MustInvoke[*TransportHandle](i)
	stores := do.MustInvoke[*Stores](i)

	router := push.NewRouter(tr.Client, push.Sinks{
		Questions:     stores.Questions,
		Answers:       stores.Answers,
		Votes:         stores.Votes,
		Notifications: stores.Notifications,
	}, push.Options{
		Logger:   log.Component("push"),
		Emitter:  feed.Manager,
		Observer: m,
		PageSize: cfg.Sync.PageSize,
	})
	router.Start(context.Background())

	log.Info("Push router started")
	return &RouterHandle{Router: router}, nil
}

// ProvideSession provides the session provider and installs it as the
// backend client's token source and 401 handler.
func ProvideSession(i do.Injector) (*session.Provider, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*BackendHandle](i)
	ks := do.MustInvoke[*KeystoreHandle](i)
	tr := do.MustInvoke[*TransportHandle](i)
	router := do.MustInvoke[*RouterHandle](i)
	stores := do.MustInvoke[*Stores](i)
	feed := do.MustInvoke[*SSEManagerHandle](i)

	provider := session.NewProvider(session.Deps{
		Auth:          client.Client,
		Tokens:        ks.Keystore,
		Transport:     tr.Client,
		Votes:         stores.Votes,
		Notifications: stores.Notifications,
		Router:        router.Router,
		Emitter:       feed.Manager,
		Logger:        log.Component("session"),
		PageSize:      cfg.Sync.PageSize,
	})

	client.SetTokenSource(provider)
	client.OnUnauthorized(provider.HandleUnauthorized)

	provider.OnChange(func(c session.Change) {
		log.Info("Session changed",
			"from", string(c.Previous),
			"to", string(c.Current),
			"user_id", c.Identity.ID,
		)
	})

	return provider, nil
}

// ProvideUploader provides the file uploader.
func ProvideUploader(i do.Injector) (*files.Uploader, error) {
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*BackendHandle](i)
	return files.NewUploader(client.Client, files.DefaultPolicyTTL, log.Component("files")), nil
}

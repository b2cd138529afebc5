package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/api"
	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/files"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/metrics"
	"github.com/stackitapp/stackit-sync/internal/session"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// drainTimeout bounds each component's graceful stop during injector shutdown.
const drainTimeout = 30 * time.Second

func drainContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), drainTimeout)
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := drainContext()
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.handler.Close()
	return err
}

// ProvideHTTPServer provides the local API server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	feed := do.MustInvoke[*SSEManagerHandle](i)
	stores := do.MustInvoke[*Stores](i)
	tr := do.MustInvoke[*TransportHandle](i)
	router := do.MustInvoke[*RouterHandle](i)
	provider := do.MustInvoke[*session.Provider](i)
	uploader := do.MustInvoke[*files.Uploader](i)
	index := do.MustInvoke[*SearchIndexHandle](i)

	services := &api.Services{
		Session:       provider,
		Questions:     stores.Questions,
		Answers:       stores.Answers,
		Votes:         stores.Votes,
		Notifications: stores.Notifications,
		Tags:          stores.Tags,
		Push:          router.Router,
		Files:         uploader,
		Search:        index.SearchIndex,
		Transport:     tr.Client,
		Feed:          feed.Manager,
	}

	handler := api.NewServer(services, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Events:      sse.NewHandler(feed.Manager, log.Component("sse")),
		Metrics:     m.Handler(),
		Observer:    m,
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Local API starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Local API server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}

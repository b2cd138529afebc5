// Package di provides dependency injection configuration for the sync client.
package di

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/di/providers"
	"github.com/stackitapp/stackit-sync/internal/files"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/metrics"
	"github.com/stackitapp/stackit-sync/internal/session"
)

// restoreTimeout bounds the startup token check against the backend.
const restoreTimeout = 15 * time.Second

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Local persistence
	do.Provide(injector, providers.ProvideKeystore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Data layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideBackend)
	do.Provide(injector, providers.ProvideStores)
	do.Provide(injector, providers.ProvideUploader)

	// Real-time layer
	do.Provide(injector, providers.ProvideTransport)
	do.Provide(injector, providers.ProvideRouter)
	do.Provide(injector, providers.ProvideSession)

	// Workers
	do.Provide(injector, providers.ProvideConfigWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and restores the saved session.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	_ = do.MustInvoke[*providers.KeystoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.BackendHandle](injector)
	_ = do.MustInvoke[*providers.Stores](injector)
	_ = do.MustInvoke[*files.Uploader](injector)
	_ = do.MustInvoke[*providers.TransportHandle](injector)
	_ = do.MustInvoke[*providers.RouterHandle](injector)
	provider := do.MustInvoke[*session.Provider](injector)

	// Workers
	_ = do.MustInvoke[*providers.ConfigWatcherHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := provider.Restore(ctx); err != nil {
		// An unreadable keystore leaves the session anonymous.
		log.Warn("Session restore failed", "error", err)
	}
	log.Info("Session restored", "state", string(provider.State()))

	return nil
}

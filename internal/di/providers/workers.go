package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/watcher"
)

// ConfigWatcherHandle wraps the config file watcher with shutdown capability.
// Watcher is nil when no config file is in use.
type ConfigWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ConfigWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Stop()
}

// ProvideConfigWatcher watches the YAML config file and applies log level
// changes without a restart.
func ProvideConfigWatcher(i do.Injector) (*ConfigWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.File == "" {
		log.Debug("No config file, skipping config watcher")
		return &ConfigWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Component("watcher"), watcher.Options{})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(cfg.File); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("Config watcher stopped", "error", err)
		}
	}()
	go w.Follow(ctx, func(ev watcher.Event) {
		applyLogLevel(log, cfg.File, ev)
	})

	log.Info("Watching config file", "path", cfg.File)
	return &ConfigWatcherHandle{Watcher: w, cancel: cancel}, nil
}

func applyLogLevel(log *logger.Logger, path string, ev watcher.Event) {
	log.Debug("Config file changed", "event", ev)
	if ev.Type != watcher.EventWritten {
		return
	}
	raw, err := config.ReadLogLevel(path)
	if err != nil {
		log.Warn("Failed to reread config", "path", path, "error", err)
		return
	}
	if raw == "" {
		return
	}
	level := logger.ParseLevel(raw)
	if level == log.Level() {
		return
	}
	log.SetLevel(level)
	log.Info("Log level changed", "level", level.String())
}

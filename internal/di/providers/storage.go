package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/stackitapp/stackit-sync/internal/config"
	"github.com/stackitapp/stackit-sync/internal/keystore"
	"github.com/stackitapp/stackit-sync/internal/logger"
	"github.com/stackitapp/stackit-sync/internal/search"
)

// KeystoreHandle wraps the keystore with shutdown capability.
type KeystoreHandle struct {
	*keystore.Keystore
}

// Shutdown implements do.Shutdownable.
func (h *KeystoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideKeystore provides the persisted token store. Without a data path
// the token lives only as long as the process.
func ProvideKeystore(i do.Injector) (*KeystoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Storage.DataPath == "" {
		ks, err := keystore.OpenInMemory(log.Component("keystore"))
		if err != nil {
			return nil, err
		}
		log.Warn("No data path configured, sign-in will not survive restarts")
		return &KeystoreHandle{Keystore: ks}, nil
	}

	path := filepath.Join(cfg.Storage.DataPath, "keystore")
	ks, err := keystore.Open(path, log.Component("keystore"))
	if err != nil {
		return nil, err
	}
	log.Info("Keystore opened", "path", path)
	return &KeystoreHandle{Keystore: ks}, nil
}

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve index of cached questions.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Storage.DataPath,
		Logger:   log.Component("search"),
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// Package keystore persists the session token on disk.
package keystore

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/stackitapp/stackit-sync/internal/errors"
)

// TokenKey is the fixed key of the bearer token. Its presence is the only restore signal.
const TokenKey = "stackit:token"

// ErrNoToken is returned when no token is stored.
var ErrNoToken = errors.NotFound("no stored token")

// Keystore wraps a Badger database holding the session token.
type Keystore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens or creates the keystore at path.
func Open(path string, logger *slog.Logger) (*Keystore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	return open(opts, logger)
}

// OpenInMemory opens a keystore that lives only as long as the process.
func OpenInMemory(logger *slog.Logger) (*Keystore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Keystore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}
	logger.Debug("keystore opened", slog.String("path", opts.Dir), slog.Bool("in_memory", opts.InMemory))
	return &Keystore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (k *Keystore) Close() error {
	return k.db.Close()
}

// Token returns the stored bearer token or ErrNoToken.
func (k *Keystore) Token() (string, error) {
	var token string
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(TokenKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			token = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken stores the bearer token, replacing any previous one.
func (k *Keystore) SetToken(token string) error {
	if token == "" {
		return k.ClearToken()
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(TokenKey), []byte(token))
	})
}

// ClearToken removes the stored token. Clearing an empty keystore is not an error.
func (k *Keystore) ClearToken() error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(TokenKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// HasToken reports whether a token is stored.
func (k *Keystore) HasToken() (bool, error) {
	_, err := k.Token()
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

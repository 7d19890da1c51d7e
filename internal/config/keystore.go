package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// KeyStore holds the API key and lets it change while the scheduler runs.
// It implements scouter.KeySource.
type KeyStore struct {
	mu  sync.RWMutex
	key string
}

func NewKeyStore(key string) *KeyStore {
	return &KeyStore{key: key}
}

func (k *KeyStore) APIKey() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

func (k *KeyStore) SetAPIKey(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.key = key
}

// Watch reloads the config file whenever it changes and picks up a new API
// key. It blocks until ctx is done. The directory is watched rather than
// the file, since editors usually replace files instead of writing them.
func (k *KeyStore) Watch(ctx context.Context, path string, log logrus.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				log.WithError(err).Warn("config: failed to reload, keeping the current api key")
				continue
			}
			if cfg.APIKey != k.APIKey() {
				k.SetAPIKey(cfg.APIKey)
				log.Info("config: api key reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config: watcher error")
		}
	}
}

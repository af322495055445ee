package mandate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// KeySource supplies the trusted key material used to verify mandate token
// signatures. It is an explicit dependency of the verifier, constructed at
// startup, so no ambient key cache exists.
type KeySource interface {
	Key() []byte
	Close() error
}

// StaticKey is a fixed in-memory key, used by tests and single-key deploys.
type StaticKey []byte

func (k StaticKey) Key() []byte { return k }

func (k StaticKey) Close() error { return nil }

// FileKeySource reads the shared verification secret from a file and reloads
// it when the file changes, so the issuer can rotate keys without a restart.
type FileKeySource struct {
	mu      sync.RWMutex
	path    string
	key     []byte
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewFileKeySource(path string) (*FileKeySource, error) {
	key, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors and rotation scripts replace the file,
	// which would invalidate a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch key directory: %w", err)
	}

	ks := &FileKeySource{
		path:    path,
		key:     key,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go ks.watch()

	return ks, nil
}

func (ks *FileKeySource) Key() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.key
}

func (ks *FileKeySource) Close() error {
	close(ks.done)
	return ks.watcher.Close()
}

func (ks *FileKeySource) watch() {
	debounce := time.NewTimer(0)
	<-debounce.C // Drain initial timer

	for {
		select {
		case event, ok := <-ks.watcher.Events:
			if !ok {
				return
			}

			if ks.shouldHandle(event) {
				// Debounce rapid changes
				debounce.Reset(100 * time.Millisecond)
				go ks.waitAndReload(debounce)
			}

		case err, ok := <-ks.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("key watcher error")

		case <-ks.done:
			return
		}
	}
}

func (ks *FileKeySource) shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(ks.path)
}

func (ks *FileKeySource) waitAndReload(timer *time.Timer) {
	<-timer.C
	ks.reload()
}

func (ks *FileKeySource) reload() {
	key, err := readKeyFile(ks.path)
	if err != nil {
		// Keep the previous key on a bad read so verification stays closed
		// against the last trusted material.
		log.Error().Err(err).Str("path", ks.path).Msg("failed to reload verification key")
		return
	}

	ks.mu.Lock()
	ks.key = key
	ks.mu.Unlock()

	log.Info().Str("path", ks.path).Msg("verification key reloaded")
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key := bytes.TrimSpace(data)
	if len(key) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}

	return key, nil
}

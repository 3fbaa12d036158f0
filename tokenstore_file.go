package sdk

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileTokenStore persists the credential to a single file, the shared slot
// between processes on the same machine. Watch observes the file through
// fsnotify so a login or logout performed elsewhere triggers
// re-verification here.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore returns a store backed by the given file path.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileTokenStore{path: abs}, nil
}

// Load implements TokenStore. A missing file means no credential.
func (s *FileTokenStore) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save implements TokenStore. The file is written 0600: the credential is
// a bearer secret.
func (s *FileTokenStore) Save(ctx context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token), 0o600)
}

// Clear implements TokenStore. Clearing an absent file is a no-op.
func (s *FileTokenStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Watch implements TokenWatcher. The parent directory is watched rather
// than the file itself, so create and remove events are seen too. The
// channel closes when ctx is done.
func (s *FileTokenStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		//nolint:errcheck // already failing
		_ = watcher.Close()
		return nil, err
	}
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		//nolint:errcheck // best-effort cleanup on return
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

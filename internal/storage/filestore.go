package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/zerovault/zerovault/internal/zverrors"
)

// FileStore is the file:// backend: one file per key, rooted at a
// directory on the local (or network-shared) filesystem.
type FileStore struct {
	root    string
	watcher *fsnotify.Watcher
}

// NewFileStore opens (creating if absent) root as the backend's
// storage directory.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, zverrors.New(zverrors.Transport, "mkdir root", err)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, zverrors.New(zverrors.Transport, "list", err)
	}
	return keys, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, zverrors.New(zverrors.Transport, "get", err)
	}
	return data, nil
}

func (f *FileStore) Put(_ context.Context, key string, data []byte) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return zverrors.New(zverrors.Transport, "mkdir", err)
	}
	// Write to a temp file then rename, so Get never observes a
	// partially written object (spec 4.6 "creates or replaces;
	// observable atomically").
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return zverrors.New(zverrors.Transport, "put", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return zverrors.New(zverrors.Transport, "put rename", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return zverrors.New(zverrors.Transport, "delete", err)
	}
	return nil
}

// Watch nudges callback whenever a file is written under the store's
// root, so a replica sharing a filesystem-backed remote with another
// process can react to a newly dropped manifest or batch instead of
// only polling. Adapted verbatim from the teacher's
// Engine.WatchFile/fsnotify idiom.
func (f *FileStore) Watch(ctx context.Context, callback func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return zverrors.New(zverrors.Transport, "watch", err)
	}
	f.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					// fsnotify watches are not recursive: start watching a
					// newly created prefix directory as well.
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					callback()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// Package artifact persists the binary content behind photo records: full
// resolution images and their thumbnails. It also provides the in-memory
// cache in front of the store and the pure thumbnail function.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind segregates artifacts into their own directories.
type Kind string

const (
	KindFull      Kind = "full"
	KindThumbnail Kind = "thumbnails"
)

// Extension is appended to every artifact file name.
const Extension = ".jpg"

var (
	// ErrNotFound is returned when a ref has no backing file or cannot be
	// resolved.
	ErrNotFound = errors.New("artifact not found")
	// ErrStorage is returned when a file cannot be written or read.
	ErrStorage = errors.New("artifact storage failure")
)

// Backend is the raw byte store the cache sits in front of.
type Backend interface {
	Save(ctx context.Context, kind Kind, key string, data []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
	Overwrite(ctx context.Context, ref string, data []byte) error
	Delete(ctx context.Context, ref string) error
}

// FileStore stores artifacts under <root>/full and <root>/thumbnails. A ref
// is "<kind>/<key>"; the file is "<root>/<kind>/<key>.jpg".
type FileStore struct {
	root string
}

// NewFileStore creates the directory tree under root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	for _, kind := range []Kind{KindFull, KindThumbnail} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", kind, err)
		}
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FileStore) Root() string { return s.root }

// Save writes data under a new ref. An empty key generates one.
func (s *FileStore) Save(_ context.Context, kind Kind, key string, data []byte) (string, error) {
	if kind != KindFull && kind != KindThumbnail {
		return "", fmt.Errorf("%w: unknown kind %q", ErrStorage, kind)
	}
	if key == "" {
		key = uuid.NewString()
	}
	if !validKey(key) {
		return "", fmt.Errorf("%w: invalid key %q", ErrStorage, key)
	}

	ref := string(kind) + "/" + key
	if err := s.write(s.path(kind, key), data); err != nil {
		return "", err
	}
	return ref, nil
}

// Load reads the bytes behind ref.
func (s *FileStore) Load(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrStorage, ref, err)
	}
	return data, nil
}

// Overwrite replaces the bytes behind an existing ref in place.
func (s *FileStore) Overwrite(_ context.Context, ref string, data []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return s.write(path, data)
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: deleting %s: %w", ErrStorage, ref, err)
	}
	return nil
}

func (s *FileStore) path(kind Kind, key string) string {
	return filepath.Join(s.root, string(kind), key+Extension)
}

func (s *FileStore) resolve(ref string) (string, error) {
	kind, key, ok := strings.Cut(ref, "/")
	if !ok || (Kind(kind) != KindFull && Kind(kind) != KindThumbnail) || !validKey(key) {
		return "", fmt.Errorf("%w: invalid ref %q", ErrNotFound, ref)
	}
	return s.path(Kind(kind), key), nil
}

// write goes through a temp file and rename so a reader never observes a
// partially written artifact.
func (s *FileStore) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %w", ErrStorage, filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: syncing %s: %w", ErrStorage, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %w", ErrStorage, filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming %s: %w", ErrStorage, filepath.Base(path), err)
	}
	return nil
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

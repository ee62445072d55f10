// Package storagesvc keeps documents and logos on the local filesystem, served under a public base URL.
package storagesvc

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
)

var (
	ErrInvalidKey      = errors.New("invalid storage key")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotFound        = core.NewNotFoundError("file not found")

	// allowedTypes are the content types documents and logos may have.
	allowedTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/webp",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
)

type FileStore struct {
	dir     string
	baseURL string
}

var _ core.ObjectStore = (*FileStore)(nil)

func NewFileStore(conf *core.Config) *FileStore {
	return &FileStore{dir: conf.Storage.Dir, baseURL: strings.TrimRight(conf.Storage.PublicBaseURL, "/")}
}

func (fs *FileStore) Dir() string { return fs.dir }

// path resolves key under the storage directory, refusing keys that escape it.
func (fs *FileStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", ErrInvalidKey
	}
	return filepath.Join(fs.dir, filepath.FromSlash(clean)), nil
}

// ContentType sniffs the type of data; it returns ErrUnsupportedType for anything but documents and images.
func ContentType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	for _, allowed := range allowedTypes {
		if mt.Is(allowed) {
			return allowed, nil
		}
	}
	return "", ErrUnsupportedType
}

func (fs *FileStore) Put(_ context.Context, key string, data []byte) (string, error) {
	fp, err := fs.path(key)
	if err != nil {
		return "", err
	}
	if _, err = ContentType(data); err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating storage directory")
	}
	if err = os.WriteFile(fp, data, 0o644); err != nil {
		return "", errors.Wrap(err, "writing file")
	}
	return fs.baseURL + "/" + key, nil
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fp, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fp)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, errors.Wrap(err, "reading file")
}

package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// EnsureDir creates dir and its parents. An existing directory is left as
// is; an existing non-directory is an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("images path %q exists and is not a directory", dir)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to stat images directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}
	return nil
}

// Store writes uploaded images under Dir and exposes them below URLPrefix.
type Store struct {
	Dir       string
	URLPrefix string
}

func NewStore(dir, urlPrefix string) *Store {
	return &Store{Dir: dir, URLPrefix: urlPrefix}
}

// Save copies the upload to a uuid-named file keeping its extension and
// returns the public path of the stored image.
func (s *Store) Save(file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, file.Filename)
	}

	if err := EnsureDir(s.Dir); err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := uuid.New().String() + ext
	dst, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	return path.Join(s.URLPrefix, name), nil
}

// Remove deletes an image previously returned by Save. Paths outside
// URLPrefix are ignored and a missing file is not an error.
func (s *Store) Remove(publicPath string) error {
	prefix := strings.TrimSuffix(s.URLPrefix, "/") + "/"
	if !strings.HasPrefix(publicPath, prefix) {
		return nil
	}
	name := strings.TrimPrefix(publicPath, prefix)
	if name == "" || name != path.Base(name) {
		return nil
	}

	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove image file: %w", err)
	}
	return nil
}

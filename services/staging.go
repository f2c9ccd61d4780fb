package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Staging writes inbound bytes into the upload directory under fresh
// internal names, keeping client-supplied filenames out of local paths.
type Staging struct {
	dir string
}

func NewStaging(dir string) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Staging{dir: dir}, nil
}

func (s *Staging) Dir() string {
	return s.dir
}

// SaveMultipart streams one uploaded form file to disk and returns its path.
func (s *Staging) SaveMultipart(file multipart.File, header *multipart.FileHeader) (string, error) {
	return s.Save(file, filepath.Ext(header.Filename))
}

// Save streams r into a new staged file with the given extension.
func (s *Staging) Save(r io.Reader, ext string) (string, error) {
	path := filepath.Join(s.dir, uuid.NewString()+sanitizeExt(ext))

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(path)
		return "", err
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return path, nil
}

func sanitizeExt(ext string) string {
	ext = filepath.Base(strings.TrimSpace(ext))
	if ext == "" || ext == "." || !strings.HasPrefix(ext, ".") {
		return ""
	}
	return ext
}

// SanitizeFilename strips any path components from a client-declared name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return fmt.Sprintf("upload-%s", uuid.NewString())
	}
	return name
}

package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmpty           = errors.New("blob: empty upload")
	ErrTooLarge        = errors.New("blob: file exceeds size limit")
	ErrUnsupportedType = errors.New("blob: unsupported file type")
	ErrInvalidPath     = errors.New("blob: invalid storage path")
)

// Object referencia un archivo almacenado.
type Object struct {
	URL         string `json:"url"`
	StoragePath string `json:"storage_path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Store guarda credenciales y avatares subidos. La validacion de tamano y tipo ocurre aqui.
type Store interface {
	Upload(ctx context.Context, data []byte, folder, ownerRef, filename string) (Object, error)
	Delete(ctx context.Context, storagePath string) error
}

// DefaultAllowedTypes cubre documentos de credenciales e imagenes.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/webp",
}

// DiskStore implementa Store sobre el sistema de archivos local.
type DiskStore struct {
	root      string
	publicURL string
	maxBytes  int64
	allowed   []string
}

func NewDiskStore(root, publicURL string, maxBytes int64, allowed ...string) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	return &DiskStore{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		allowed:   allowed,
	}, nil
}

func (s *DiskStore) Upload(ctx context.Context, data []byte, folder, ownerRef, filename string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if len(data) == 0 {
		return Object{}, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return Object{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), s.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), s.allowed...) {
		return Object{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	folder = sanitizeSegment(folder)
	ownerRef = sanitizeSegment(ownerRef)
	if folder == "" || ownerRef == "" {
		return Object{}, ErrInvalidPath
	}

	name := uuid.NewString() + mtype.Extension()
	if base := sanitizeSegment(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))); base != "" {
		name = base + "-" + name
	}
	storagePath := path.Join(folder, ownerRef, name)

	full := filepath.Join(s.root, filepath.FromSlash(storagePath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Object{}, err
	}

	return Object{
		URL:         s.publicURL + "/" + storagePath,
		StoragePath: storagePath,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
	}, nil
}

func (s *DiskStore) Delete(ctx context.Context, storagePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := path.Clean("/" + storagePath)
	if clean == "/" || strings.Contains(storagePath, "..") {
		return ErrInvalidPath
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	return b.String()
}

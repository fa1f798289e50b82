package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesystemStore keeps bid documents on local disk, addressed by a
// content-derived reference. The engine only ever checks presence of a
// reference; content is opaque.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates the root directory if needed.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create document root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// Store persists bytes and returns an opaque reference.
func (s *FilesystemStore) Store(ctx context.Context, bidID uuid.UUID, documentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	ref := fmt.Sprintf("%s/%s/%s", bidID, sanitize(documentType), hex.EncodeToString(sum[:8]))

	path := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	return ref, nil
}

// Fetch retrieves previously stored bytes.
func (s *FilesystemStore) Fetch(ctx context.Context, reference string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(reference, "..") {
		return nil, fmt.Errorf("invalid document reference %q", reference)
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(reference)))
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", reference, err)
	}
	return data, nil
}

func sanitize(documentType string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, documentType)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactStore persists generated images under a permanent reference.
// Provider URLs are transient and may expire; the store owns the durable
// copy and the URL handed to devices and UIs.
type ArtifactStore interface {
	Persist(ctx context.Context, sourceURL, ownerID, artifactID string) (string, error)
	PermanentURL(ownerID, artifactID string) string
}

// FileStore persists artifacts onto the local filesystem. It is intended
// for development and single-node deployments where an object storage
// service is not available.
type FileStore struct {
	basePath string
	baseURL  string
	client   *http.Client
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL is the
// public prefix under which stored artifacts are served.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Persist downloads the transient source URL and writes the bytes under a
// key derived from the owner and artifact ids. Returns the storage key.
func (s *FileStore) Persist(ctx context.Context, sourceURL, ownerID, artifactID string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	data, err := s.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	key, err := sanitizeKey(artifactKey(ownerID, artifactID))
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return key, nil
}

// PermanentURL returns the durable URL for a persisted artifact. It
// mirrors the storage key layout so a static file server rooted at the
// base path serves it directly.
func (s *FileStore) PermanentURL(ownerID, artifactID string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, artifactKey(ownerID, artifactID))
}

func (s *FileStore) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: download artifact: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storage: download artifact: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("storage: read artifact: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("storage: downloaded artifact is empty")
	}
	return data, nil
}

func artifactKey(ownerID, artifactID string) string {
	return fmt.Sprintf("artifacts/%s/%s.png", ownerID, artifactID)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ ArtifactStore = (*FileStore)(nil)

package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"dossier/internal/httpclient"
	"dossier/internal/services"
)

// Store persists normalized image bytes and returns their public URL.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// ObjectPath is the content-addressed key for data: sha256/<first two hex
// digits>/<digest>.jpg.
func ObjectPath(data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	return "sha256/" + digest[:2] + "/" + digest + ".jpg"
}

const (
	lockFileName  = ".write.lock"
	lockRetry     = 25 * time.Millisecond
	tempPrefix    = ".upload-"
	fileStoreMode = 0o644
)

// FileStore writes assets under a local directory. Writers in other processes
// sharing the directory are serialized through a lock file, goroutines in
// this one through the mutex.
type FileStore struct {
	root    string
	baseURL string
	mu      sync.Mutex
	lock    *flock.Flock
}

// NewFileStore creates the root directory when needed.
func NewFileStore(root, publicBaseURL string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("asset directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		lock:    flock.New(filepath.Join(root, lockFileName)),
	}, nil
}

// Root returns the asset directory.
func (s *FileStore) Root() string { return s.root }

// Put writes data once per digest. Rewriting identical content is a no-op.
func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrStorageError, "assets", "put", "empty asset", nil)
	}
	rel := ObjectPath(data)
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return "", services.Wrap(services.ErrStorageError, "assets", "lock", s.root, err)
	}
	if !locked {
		return "", services.Wrap(services.ErrStorageError, "assets", "lock", "asset directory busy", nil)
	}
	defer func() { _ = s.lock.Unlock() }()

	if info, err := os.Stat(full); err == nil && info.Size() == int64(len(data)) {
		return s.publicURL(rel), nil
	}
	if err := writeAtomic(full, data); err != nil {
		return "", services.Wrap(services.ErrStorageError, "assets", "put", rel, err)
	}
	return s.publicURL(rel), nil
}

func (s *FileStore) publicURL(rel string) string {
	return s.baseURL + "/" + rel
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, fileStoreMode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// HTTPStore uploads assets to an object store bucket with PUT requests, as
// S3-compatible presigned endpoints and Supabase storage accept them.
type HTTPStore struct {
	uploadURL  string
	publicURL  string
	token      string
	httpClient *http.Client
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithUploadHTTPClient overrides the upload HTTP client.
func WithUploadHTTPClient(client *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewHTTPStore builds an uploading store. publicBaseURL defaults to uploadURL.
func NewHTTPStore(uploadURL, publicBaseURL, token string, timeout time.Duration, opts ...HTTPStoreOption) (*HTTPStore, error) {
	uploadURL = strings.TrimRight(strings.TrimSpace(uploadURL), "/")
	if uploadURL == "" {
		return nil, errors.New("asset upload url required")
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	publicBaseURL = strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if publicBaseURL == "" {
		publicBaseURL = uploadURL
	}
	s := &HTTPStore{
		uploadURL:  uploadURL,
		publicURL:  publicBaseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put uploads data under its content-addressed key, overwriting any object
// already there.
func (s *HTTPStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrStorageError, "assets", "upload", "empty asset", nil)
	}
	rel := ObjectPath(data)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL+"/"+rel, bytes.NewReader(data))
	if err != nil {
		return "", services.Wrap(services.ErrStorageError, "assets", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Cache-Control", "public, max-age=31536000, immutable")
	req.Header.Set("x-upsert", "true")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrStorageError, "assets", "upload", rel, err)
	}
	defer resp.Body.Close()
	if _, err := httpclient.ReadBody(resp, "asset store", 64<<10); err != nil {
		return "", services.Wrap(services.ErrStorageError, "assets", "upload", rel, err)
	}
	return s.publicURL + "/" + rel, nil
}

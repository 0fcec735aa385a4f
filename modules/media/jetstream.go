package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketName is the fs-jetstream bucket that holds task images.
const BucketName = "task-images"

// JetStreamStore keeps images in an fs-jetstream bucket and serves them
// through the API under /media/<publicId>.
type JetStreamStore struct {
	bucket  fsjetstream.FileStoragePort
	folder  string
	baseURL string
}

var (
	_ Store   = (*JetStreamStore)(nil)
	_ Fetcher = (*JetStreamStore)(nil)
)

// NewJetStreamStore creates a store over bucket. Objects are keyed
// "<folder>/<uuid>/<filename>" and addressed at baseURL + "/media/" + key.
func NewJetStreamStore(bucket fsjetstream.FileStoragePort, folder, baseURL string) *JetStreamStore {
	return &JetStreamStore{
		bucket:  bucket,
		folder:  strings.Trim(folder, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload stores the file under a fresh key.
func (s *JetStreamStore) Upload(ctx context.Context, file File) (*Uploaded, error) {
	name := sanitizeFilename(file.Name)
	key := path.Join(s.folder, uuid.New().String(), name)

	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Data)
	}

	if _, err := s.bucket.Put(ctx, key, file.Data,
		fsjetstream.WithDescription(fmt.Sprintf("Task image: %s", name)),
		fsjetstream.WithHeaders(map[string]string{
			"Content-Type":  contentType,
			"Original-Name": name,
			"Uploaded-At":   time.Now().Format(time.RFC3339),
		}),
	); err != nil {
		return nil, fmt.Errorf("failed to store image %s: %w", name, err)
	}

	return &Uploaded{
		URL:      s.baseURL + "/media/" + key,
		PublicID: key,
	}, nil
}

// Delete removes the object. A missing object is not an error.
func (s *JetStreamStore) Delete(_ context.Context, publicID string) error {
	if err := s.bucket.Delete(publicID); err != nil {
		if isObjectNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete image %s: %w", publicID, err)
	}
	return nil
}

// Fetch returns the object bytes and stored content type.
func (s *JetStreamStore) Fetch(_ context.Context, publicID string) ([]byte, string, error) {
	info, err := s.bucket.Stat(publicID)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("failed to stat image %s: %w", publicID, err)
	}

	data, err := s.bucket.Get(publicID)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("failed to get image %s: %w", publicID, err)
	}

	contentType := info.Headers["Content-Type"]
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// isObjectNotFound matches the not-found errors of both NATS object store
// APIs; the plugin may wrap them without %w.
func isObjectNotFound(err error) bool {
	if errors.Is(err, jetstream.ErrObjectNotFound) || errors.Is(err, nats.ErrObjectNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "object not found")
}

// Package media stores task images behind a small upload/delete port.
// Two backends exist: an embedded JetStream object store and Cloudinary.
package media

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned by Fetch when no object has the given public id.
var ErrObjectNotFound = errors.New("media object not found")

// File is an image received from a client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploaded identifies a stored object. PublicID is the key used to delete it later.
type Uploaded struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Store uploads and deletes media objects.
// Delete must succeed when the object is already gone.
type Store interface {
	Upload(ctx context.Context, file File) (*Uploaded, error)
	Delete(ctx context.Context, publicID string) error
}

// Fetcher is implemented by stores that serve their own objects instead of
// returning a publicly hosted URL.
type Fetcher interface {
	Fetch(ctx context.Context, publicID string) (data []byte, contentType string, err error)
}

// sanitizeFilename removes path separators and dangerous characters from filename.
func sanitizeFilename(filename string) string {
	clean := filepath.Base(filepath.Clean(filename))
	clean = strings.ReplaceAll(clean, "/", "_")
	clean = strings.ReplaceAll(clean, "\\", "_")
	clean = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '?', r == '#', r == '%':
			return '_'
		case r == ' ':
			return '-'
		}
		return r
	}, clean)
	if clean == "." || clean == ".." || clean == "" {
		return "unnamed"
	}
	return clean
}

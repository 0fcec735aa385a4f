package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore uploads images to a Cloudinary folder.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ Store = (*CloudinaryStore)(nil)

// NewCloudinaryStore creates a client from explicit credentials.
func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary credentials are required")
	}

	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	cld.Config.URL.Secure = true

	return &CloudinaryStore{
		cld:    cld,
		folder: folder,
	}, nil
}

// Upload sends the file to Cloudinary and returns its secure URL and public id.
func (s *CloudinaryStore) Upload(ctx context.Context, file File) (*Uploaded, error) {
	resp, err := s.cld.Upload.Upload(ctx, bytes.NewReader(file.Data), uploader.UploadParams{
		Folder: s.folder,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload failed: %s", resp.Error.Message)
	}

	return &Uploaded{
		URL:      resp.SecureURL,
		PublicID: resp.PublicID,
	}, nil
}

// Delete destroys the asset. Cloudinary answers "not found" for missing
// assets, which counts as success.
func (s *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: publicID,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s failed: %w", publicID, err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy %s failed: %s", publicID, resp.Error.Message)
	}

	switch resp.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("cloudinary destroy %s failed: result %q", publicID, resp.Result)
	}
}

// Package storage keeps issue photos outside the database and hands back a
// URL the clients can load.
package storage

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/google/uuid"
)

// Uploader stores one image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, img Image) (string, error)
}

// Image is an upload already read into memory and sniffed.
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

// DetectImage sniffs data and rejects anything that is not an image,
// whatever the client claimed in its Content-Type.
func DetectImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, apperr.Validation("invalid_image", "Image is empty", map[string]string{"image": "must not be empty"})
	}

	mt := mimetype.Detect(data)

	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, apperr.Validation("invalid_image", "Uploaded file is not an image", map[string]string{
			"image": "unsupported type " + mt.String(),
		})
	}

	return Image{
		Data:        data,
		ContentType: mt.String(),
		Extension:   mt.Extension(),
	}, nil
}

// objectName is a random key under the issues/ prefix.
func objectName(img Image) string {
	return "issues/" + uuid.NewString() + img.Extension
}

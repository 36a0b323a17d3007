package repository

import (
	"context"
	"image"
)

// ImageRepository lists and loads source images
type ImageRepository interface {
	// ListImages returns the supported images directly inside folder, sorted by file
	// name ascending and case-insensitively.
	ListImages(ctx context.Context, folder string) ([]string, error)

	// LoadImage opens and decodes one image. Failures are image_read errors.
	LoadImage(ctx context.Context, path string) (image.Image, error)
}

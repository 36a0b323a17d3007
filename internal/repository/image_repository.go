package repository

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
)

// SupportedExtensions are the file extensions picked up from folders
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// IsSupported reports whether name has a supported image extension
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode decodes any supported image format
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, apperrors.NewImageReadError("cannot decode image", err)
	}
	return img, nil
}

// FileImageRepository implements ImageRepository on the local file system
type FileImageRepository struct{}

// NewFileImageRepository creates a file-system image repository
func NewFileImageRepository() ImageRepository {
	return &FileImageRepository{}
}

func (r *FileImageRepository) ListImages(ctx context.Context, folder string) ([]string, error) {
	st, err := os.Stat(folder)
	if err != nil {
		return nil, apperrors.NewInvalidPathError(folder, err)
	}
	if !st.IsDir() {
		return nil, apperrors.NewInvalidPathError(folder, ErrNotADirectory)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, apperrors.NewInvalidPathError(folder, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	SortByName(files)
	return files, ctx.Err()
}

// SortByName orders paths by base name, case-insensitively, ties broken by the
// exact name so the order is total.
func SortByName(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := filepath.Base(paths[i]), filepath.Base(paths[j])
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
}

func (r *FileImageRepository) LoadImage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewImageReadError(fmt.Sprintf("cannot open %s", filepath.Base(path)), ErrImageNotFound)
		}
		return nil, apperrors.NewImageReadError(fmt.Sprintf("cannot open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.NewImageReadError(fmt.Sprintf("cannot decode %s", filepath.Base(path)), err)
	}
	return img, nil
}

package preprocess

import (
	"image"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Preprocessor turns a raw image into a clean binary bitmap for OCR
type Preprocessor interface {
	Preprocess(img image.Image, mode models.Mode) (*image.Gray, error)
	PreprocessWithProfile(img image.Image, profile Profile) (*image.Gray, error)
}

type preprocessor struct{}

// NewPreprocessor creates a new preprocessor
func NewPreprocessor() Preprocessor {
	return &preprocessor{}
}

// Preprocess runs the pipeline selected by mode. The result contains only 0 and 255.
func (p *preprocessor) Preprocess(img image.Image, mode models.Mode) (*image.Gray, error) {
	return p.PreprocessWithProfile(img, ProfileFor(mode))
}

func (p *preprocessor) PreprocessWithProfile(img image.Image, profile Profile) (*image.Gray, error) {
	if img == nil {
		return nil, apperrors.NewImageReadError("no image data", nil)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.NewImageReadError("image has no pixels", nil)
	}

	gray := toGray(img)
	if profile.RegionMask || profile.UpscaleFirst {
		return p.focused(gray, profile), nil
	}
	return p.generic(gray, profile), nil
}

// generic: median, CLAHE, Otsu, optional upscale, closing
func (p *preprocessor) generic(gray *image.Gray, profile Profile) *image.Gray {
	denoised := medianBlur3(gray)
	enhanced := clahe(denoised, profile.ClipLimit, profile.TileGrid)
	binary := threshold(enhanced, otsuThreshold(enhanced))

	if profile.shouldUpscale(binary.Rect.Dx(), binary.Rect.Dy()) {
		// Bicubic interpolation introduces intermediate greys; snap back to binary.
		binary = threshold(upscale2x(binary), 127)
	}
	return closing2x2(binary)
}

// focused: upscale, CLAHE, dark-mode inversion, median, panel masking, Otsu, closing
func (p *preprocessor) focused(gray *image.Gray, profile Profile) *image.Gray {
	if profile.UpscaleFirst && profile.shouldUpscale(gray.Rect.Dx(), gray.Rect.Dy()) {
		gray = upscale2x(gray)
	}

	enhanced := clahe(gray, profile.ClipLimit, profile.TileGrid)
	if profile.InvertBelow > 0 && p.meanIntensity(enhanced) < profile.InvertBelow {
		enhanced = invert(enhanced)
	}
	enhanced = medianBlur3(enhanced)

	focused := enhanced
	if profile.RegionMask {
		edges := canny(enhanced, profile.CannyLow, profile.CannyHigh)
		var boxes []image.Rectangle
		for _, r := range externalContourBoxes(edges, enhanced.Rect.Dx(), enhanced.Rect.Dy()) {
			w, h := r.Dx(), r.Dy()
			if w > profile.MinRegionW && w < profile.MaxRegionW && h > profile.MinRegionH && h < profile.MaxRegionH {
				boxes = append(boxes, r)
			}
		}
		if len(boxes) > 0 {
			focused = maskOutside(enhanced, boxes)
		}
	}

	binary := threshold(focused, otsuThreshold(focused))
	return closing2x2(binary)
}

// meanIntensity averages the pixels inside gray's bounds
func (p *preprocessor) meanIntensity(gray *image.Gray) float64 {
	b := gray.Rect
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := gray.PixOffset(b.Min.X, y)
		for _, v := range gray.Pix[off : off+b.Dx()] {
			sum += uint64(v)
		}
	}
	return float64(sum) / float64(n)
}

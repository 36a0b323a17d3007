package preprocess

import "github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"

// Profile bundles the parameters of one preprocessing pipeline
type Profile struct {
	Name string

	// CLAHE
	ClipLimit float64
	TileGrid  int

	// UpscaleBelow doubles the image when max(w,h) is below it. Zero disables.
	UpscaleBelow int
	// UpscaleFirst scales the grayscale input before enhancement; otherwise the
	// binary output is scaled and re-thresholded.
	UpscaleFirst bool

	// InvertBelow inverts light-on-dark screenshots whose mean intensity is below it.
	// Zero disables.
	InvertBelow float64

	// RegionMask restricts the output to panel-sized regions found by edge detection
	RegionMask bool
	CannyLow   int
	CannyHigh  int
	MinRegionW int
	MaxRegionW int
	MinRegionH int
	MaxRegionH int
}

// GenericProfile is used for arbitrary documents
func GenericProfile() Profile {
	return Profile{
		Name:         string(models.ModeDefault),
		ClipLimit:    2.0,
		TileGrid:     8,
		UpscaleBelow: 1200,
	}
}

// WindowsSecurityProfile is tuned for Windows Security UI screenshots
func WindowsSecurityProfile() Profile {
	return Profile{
		Name:         string(models.ModeWindowsSecurity),
		ClipLimit:    3.0,
		TileGrid:     8,
		UpscaleBelow: 1600,
		UpscaleFirst: true,
		InvertBelow:  110,
		RegionMask:   true,
		CannyLow:     50,
		CannyHigh:    150,
		MinRegionW:   250,
		MaxRegionW:   2000,
		MinRegionH:   60,
		MaxRegionH:   350,
	}
}

// ProfileFor returns the profile of a mode
func ProfileFor(mode models.Mode) Profile {
	if mode == models.ModeWindowsSecurity {
		return WindowsSecurityProfile()
	}
	return GenericProfile()
}

func (p Profile) shouldUpscale(w, h int) bool {
	return p.UpscaleBelow > 0 && max(w, h) < p.UpscaleBelow
}

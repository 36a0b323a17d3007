package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Engine recognizes text in an encoded (PNG) image
type Engine interface {
	Recognize(ctx context.Context, image []byte, cfg RecognizeConfig) (string, error)
	// Probe locates and configures the engine and reports what it can do
	Probe(ctx context.Context) (Capabilities, error)
	Name() string
}

// Capabilities is the result of probing an engine
type Capabilities struct {
	Version string
	Major   int
	Minor   int
	// Whitelist reports whether a character whitelist can be combined with the
	// LSTM recognizer.
	Whitelist bool
}

// Supports reports whether mode can be honoured by the engine
func (c Capabilities) Supports(mode models.Mode) bool {
	if mode == models.ModeWindowsSecurity {
		return c.Whitelist
	}
	return mode.Valid()
}

// VersionTag is recorded in improvement reports
func (c Capabilities) VersionTag() string {
	return fmt.Sprintf("tesseract %s", c.Version)
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// parseCapabilities extracts the first version number from engine output.
// LSTM honours tessedit_char_whitelist from 4.1 on.
func parseCapabilities(out string) (Capabilities, error) {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return Capabilities{}, fmt.Errorf("no version in %q", out)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return Capabilities{
		Version:   m[0],
		Major:     major,
		Minor:     minor,
		Whitelist: major > 4 || (major == 4 && minor >= 1),
	}, nil
}

package ocr

import (
	"strings"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// WindowsSecurityWhitelist restricts recognition to the characters that appear in
// Windows Security panels.
const WindowsSecurityWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 :.-()[]/%"

// Tesseract page segmentation and engine modes used for every recognition
const (
	PageSegUniformBlock = 6
	EngineModeDefault   = 3
)

// ExtractOptions configures one extraction
type ExtractOptions struct {
	Mode       models.Mode
	Languages  []string
	Preprocess bool
}

// DefaultOptions returns options for generic documents
func DefaultOptions() ExtractOptions {
	return ExtractOptions{
		Mode:       models.ModeDefault,
		Languages:  []string{"ron", "eng"},
		Preprocess: true,
	}
}

// WindowsSecurityOptions returns options tuned for Windows Security screenshots
func WindowsSecurityOptions() ExtractOptions {
	opts := DefaultOptions()
	opts.Mode = models.ModeWindowsSecurity
	return opts
}

// WithLanguages overrides the recognition languages
func (opts ExtractOptions) WithLanguages(langs ...string) ExtractOptions {
	opts.Languages = append([]string(nil), langs...)
	return opts
}

// WithMode switches the mode, keeping the other settings
func (opts ExtractOptions) WithMode(mode models.Mode) ExtractOptions {
	opts.Mode = mode
	return opts
}

// LanguageTag returns the languages joined Tesseract-style, e.g. "ron+eng"
func (opts ExtractOptions) LanguageTag() string {
	return strings.Join(opts.Languages, "+")
}

// RecognizeConfig is what an Engine needs to know for one call
type RecognizeConfig struct {
	Languages  []string
	PageSeg    int
	EngineMode int
	Whitelist  string
}

func (c RecognizeConfig) LanguageTag() string {
	return strings.Join(c.Languages, "+")
}

func recognizeConfigFor(opts ExtractOptions) RecognizeConfig {
	cfg := RecognizeConfig{
		Languages:  opts.Languages,
		PageSeg:    PageSegUniformBlock,
		EngineMode: EngineModeDefault,
	}
	if opts.Mode == models.ModeWindowsSecurity {
		cfg.Whitelist = WindowsSecurityWhitelist
	}
	return cfg
}

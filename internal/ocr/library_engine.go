package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// libraryEngine calls libtesseract through gosseract. A client is created per call
// because gosseract clients are not safe for concurrent use.
type libraryEngine struct {
	tessdataPrefix string
}

// NewLibraryEngine creates an engine backed by the linked Tesseract library
func NewLibraryEngine(tessdataPrefix string) Engine {
	return &libraryEngine{tessdataPrefix: tessdataPrefix}
}

func (e *libraryEngine) Name() string {
	return "tesseract-library"
}

func (e *libraryEngine) Probe(ctx context.Context) (caps Capabilities, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tesseract library unavailable: %v", r)
		}
	}()
	client := gosseract.NewClient()
	defer client.Close()
	return parseCapabilities(client.Version())
}

func (e *libraryEngine) Recognize(ctx context.Context, image []byte, cfg RecognizeConfig) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := e.recognize(image, cfg)
		done <- result{text, err}
	}()

	// The library call cannot be interrupted; on timeout its result is discarded.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (e *libraryEngine) recognize(image []byte, cfg RecognizeConfig) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return "", err
		}
	}
	if err := client.SetLanguage(cfg.Languages...); err != nil {
		return "", err
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSeg)); err != nil {
		return "", err
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}

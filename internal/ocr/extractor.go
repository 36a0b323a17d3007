package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/preprocess"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// DefaultTimeout bounds a single recognition when no timeout is configured
const DefaultTimeout = 60 * time.Second

// Extractor runs preprocessing and recognition for one image at a time.
// Implementations are safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, img image.Image, opts ExtractOptions) (*models.ExtractionResult, error)
	// ResolveMode returns the mode that will actually be used for a request
	ResolveMode(requested models.Mode) models.Mode
	Capabilities() Capabilities
	EngineName() string
}

// ExtractorConfig holds the optional collaborators of an extractor
type ExtractorConfig struct {
	Timeout time.Duration
	Cache   Cache
}

type extractor struct {
	engine       Engine
	preprocessor preprocess.Preprocessor
	caps         Capabilities
	timeout      time.Duration
	cache        Cache
}

// NewExtractor probes the engine once. An engine that cannot be located or
// configured yields an engine_unavailable error and no extractor.
func NewExtractor(ctx context.Context, engine Engine, pre preprocess.Preprocessor, cfg ExtractorConfig) (Extractor, error) {
	if engine == nil {
		return nil, apperrors.NewEngineUnavailableError("no OCR engine configured", nil)
	}
	caps, err := engine.Probe(ctx)
	if err != nil {
		return nil, apperrors.NewEngineUnavailableError(fmt.Sprintf("%s unavailable", engine.Name()), err)
	}
	if pre == nil {
		pre = preprocess.NewPreprocessor()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger.WithFields(logrus.Fields{
		"engine":    engine.Name(),
		"version":   caps.Version,
		"whitelist": caps.Whitelist,
	}).Info("OCR engine ready")

	return &extractor{
		engine:       engine,
		preprocessor: pre,
		caps:         caps,
		timeout:      timeout,
		cache:        cfg.Cache,
	}, nil
}

func (e *extractor) Capabilities() Capabilities {
	return e.caps
}

func (e *extractor) EngineName() string {
	return e.engine.Name()
}

func (e *extractor) ResolveMode(requested models.Mode) models.Mode {
	if e.caps.Supports(requested) {
		return requested
	}
	return models.ModeDefault
}

func (e *extractor) Extract(ctx context.Context, img image.Image, opts ExtractOptions) (*models.ExtractionResult, error) {
	if !opts.Mode.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown mode %q", opts.Mode), nil)
	}
	if len(opts.Languages) == 0 {
		opts.Languages = DefaultOptions().Languages
	}
	if img == nil {
		return nil, apperrors.NewImageReadError("no image data", nil)
	}

	mode := e.ResolveMode(opts.Mode)
	if mode != opts.Mode {
		logger.WithFields(logrus.Fields{
			"requested": opts.Mode,
			"resolved":  mode,
			"version":   e.caps.Version,
		}).Warn("OCR engine cannot honour mode, falling back")
	}
	opts.Mode = mode

	start := time.Now()

	bitmap := img
	if opts.Preprocess {
		gray, err := e.preprocessor.Preprocess(img, mode)
		if err != nil {
			return nil, err
		}
		bitmap = gray
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, bitmap); err != nil {
		return nil, apperrors.NewExtractionError("encode bitmap", err)
	}

	text, err := e.recognize(ctx, buf.Bytes(), opts)
	if err != nil {
		return nil, err
	}

	return &models.ExtractionResult{
		Text:      strings.TrimSpace(text),
		Language:  opts.LanguageTag(),
		Mode:      mode,
		Elapsed:   time.Since(start),
		Timestamp: time.Now(),
	}, nil
}

func (e *extractor) recognize(ctx context.Context, data []byte, opts ExtractOptions) (string, error) {
	var key string
	if e.cache != nil {
		key = CacheKey(data, opts.Mode, opts.LanguageTag())
		text, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			logger.WithError(err).Warn("OCR cache lookup failed")
		} else if ok {
			logger.WithField("key", key[:12]).Debug("OCR cache hit")
			return text, nil
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.engine.Recognize(tctx, data, recognizeConfigFor(opts))
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", apperrors.NewEngineTimeoutError(fmt.Sprintf("recognition exceeded %s", e.timeout), err)
		}
		return "", apperrors.NewExtractionError("recognition failed", err)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, text); err != nil {
			logger.WithError(err).Warn("OCR cache store failed")
		}
	}
	return text, nil
}

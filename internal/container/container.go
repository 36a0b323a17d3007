package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/factory"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/preprocess"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/repository"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/risk"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/service"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/storage"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	store     storage.ArtifactStore
	cache     ocr.Cache
	extractor ocr.Extractor
	metrics   *observer.MetricsObserver
	service   service.PipelineService
	fetcher   storage.ImageFetcher
	handler   http.Handler
}

// NewContainer builds the dependency graph from cfg. Rule loading and store setup
// come before the engine probe; an engine that cannot be probed yields an
// engine_unavailable error.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	rules, err := loadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	components := factory.NewComponentFactory(cfg)

	store, err := components.StoreFactory.CreateStore(factory.StoreType(cfg.ArtifactBackend))
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	cache, err := components.CacheFactory.CreateCache(ctx)
	if err != nil {
		// extraction works without the cache
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("OCR cache disabled")
		cache = nil
	}

	engine, err := components.EngineFactory.CreateEngine(factory.EngineType(cfg.OCRBackend))
	if err != nil {
		closeCache(cache)
		return nil, err
	}
	extractor, err := ocr.NewExtractor(ctx, engine, preprocess.NewPreprocessor(), ocr.ExtractorConfig{
		Timeout: cfg.ExtractionTimeout,
		Cache:   cache,
	})
	if err != nil {
		closeCache(cache)
		return nil, err
	}

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	cls := classifier.New(rules)
	svc, err := service.NewPipelineService(service.Dependencies{
		Repository: repository.NewFileImageRepository(),
		Extractor:  extractor,
		Classifier: cls,
		Deriver:    risk.NewDeriver(risk.PolicyFor(cls.Rules())),
		Store:      store,
		Publisher:  publisher,
	}, service.Options{
		Workers:   cfg.WorkerCount(),
		Languages: cfg.Languages,
	})
	if err != nil {
		closeCache(cache)
		return nil, err
	}

	fetcher := storage.NewHTTPImageFetcher(cfg.RequestTimeout, cfg.MaxRequestBodySize)
	handler := transport.NewHandler(svc, fetcher, metrics, extractor, cfg)

	logger.WithField("store", store.Location()).
		WithField("workers", cfg.WorkerCount()).
		WithField("rules", cls.Rules().Len()).
		Info("Pipeline ready")

	return &Container{
		config:    cfg,
		store:     store,
		cache:     cache,
		extractor: extractor,
		metrics:   metrics,
		service:   svc,
		fetcher:   fetcher,
		handler:   handler,
	}, nil
}

func loadRules(path string) (*classifier.RuleSet, error) {
	if path == "" {
		return classifier.MustDefault(), nil
	}
	return classifier.LoadRules(path)
}

func closeCache(cache ocr.Cache) {
	if cache != nil {
		_ = cache.Close()
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the pipeline service
func (c *Container) Service() service.PipelineService {
	return c.service
}

// Extractor returns the probed extractor
func (c *Container) Extractor() ocr.Extractor {
	return c.extractor
}

// Metrics returns the pipeline counters
func (c *Container) Metrics() observer.Metrics {
	return c.metrics.GetMetrics()
}

// Close releases the cache connection
func (c *Container) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

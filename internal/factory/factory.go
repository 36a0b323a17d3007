package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/storage"
)

// EngineType represents the available OCR backends
type EngineType string

const (
	// CLIEngine runs the tesseract executable
	CLIEngine EngineType = config.BackendCLI
	// LibraryEngine links libtesseract through gosseract
	LibraryEngine EngineType = config.BackendLibrary
)

// StoreType represents the available artifact stores
type StoreType string

const (
	// LocalStore writes under the output root
	LocalStore StoreType = config.ArtifactLocal
	// AzureStore uploads to a blob container
	AzureStore StoreType = config.ArtifactAzure
)

// EngineFactory creates OCR engines
type EngineFactory interface {
	CreateEngine(engineType EngineType) (ocr.Engine, error)
}

// StoreFactory creates artifact stores
type StoreFactory interface {
	CreateStore(storeType StoreType) (storage.ArtifactStore, error)
}

// CacheFactory creates the optional extraction cache
type CacheFactory interface {
	// CreateCache returns nil without error when caching is disabled
	CreateCache(ctx context.Context) (ocr.Cache, error)
}

type engineFactory struct {
	cfg *config.Config
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config) EngineFactory {
	return &engineFactory{cfg: cfg}
}

// CreateEngine creates an engine based on the specified type
func (f *engineFactory) CreateEngine(engineType EngineType) (ocr.Engine, error) {
	switch engineType {
	case CLIEngine:
		return ocr.NewCLIEngine(f.cfg.TesseractPath, f.cfg.TessdataPrefix), nil
	case LibraryEngine:
		return ocr.NewLibraryEngine(f.cfg.TessdataPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported OCR backend: %s", engineType)
	}
}

type storeFactory struct {
	cfg *config.Config
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config) StoreFactory {
	return &storeFactory{cfg: cfg}
}

// CreateStore creates a store based on the specified type
func (f *storeFactory) CreateStore(storeType StoreType) (storage.ArtifactStore, error) {
	switch storeType {
	case LocalStore:
		return storage.NewLocalStore(f.cfg.OutputRoot)
	case AzureStore:
		return storage.NewAzureStore(f.cfg.AzureAccount, f.cfg.AzureKey, f.cfg.AzureContainer, "")
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", storeType)
	}
}

type cacheFactory struct {
	enabled bool
	addr    string
	ttl     time.Duration
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config) CacheFactory {
	return &cacheFactory{enabled: cfg.CacheEnabled(), addr: cfg.RedisAddr, ttl: cfg.CacheTTL}
}

func (f *cacheFactory) CreateCache(ctx context.Context) (ocr.Cache, error) {
	if !f.enabled {
		return nil, nil
	}
	return ocr.NewRedisCache(ctx, f.addr, f.ttl)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	EngineFactory EngineFactory
	StoreFactory  StoreFactory
	CacheFactory  CacheFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		EngineFactory: NewEngineFactory(cfg),
		StoreFactory:  NewStoreFactory(cfg),
		CacheFactory:  NewCacheFactory(cfg),
	}
}

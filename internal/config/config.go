package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OCR backends
const (
	BackendCLI     = "cli"
	BackendLibrary = "library"
)

// Artifact backends
const (
	ArtifactLocal = "local"
	ArtifactAzure = "azure"
)

const windowsTesseractPath = `C:\Program Files\Tesseract-OCR\tesseract.exe`

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	// OutputRoot holds ocr_results/, security_results/ and the improvement report
	OutputRoot string

	TesseractPath     string
	OCRBackend        string
	Languages         []string
	TessdataPrefix    string
	ExtractionTimeout time.Duration
	Workers           int
	RulesFile         string

	ArtifactBackend string
	AzureAccount    string
	AzureKey        string
	AzureContainer  string

	RedisAddr string
	CacheTTL  time.Duration

	// AllowedImageHosts restricts /v1/analyze-url downloads; empty allows any host
	AllowedImageHosts []string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// WorkerCount resolves Workers, where zero means one worker per CPU
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// LanguageTag joins the configured languages the way Tesseract expects them
func (c *Config) LanguageTag() string {
	return strings.Join(c.Languages, "+")
}

// CacheEnabled reports whether extraction results should be cached in Redis
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// LoadFromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 90*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB

		OutputRoot:        getEnvOrDefault("VAULTGUARD_HOME", defaultOutputRoot()),
		TesseractPath:     getEnvOrDefault("VAULTGUARD_TESSERACT_PATH", defaultTesseractPath()),
		OCRBackend:        strings.ToLower(getEnvOrDefault("OCR_BACKEND", BackendCLI)),
		Languages:         parseLanguages(getEnvOrDefault("OCR_LANGUAGES", "ron+eng")),
		TessdataPrefix:    os.Getenv("TESSDATA_PREFIX"),
		ExtractionTimeout: parseDurationOrDefault("EXTRACTION_TIMEOUT", 60*time.Second),
		Workers:           int(parseIntOrDefault("WORKERS", 0)),
		RulesFile:         os.Getenv("RULES_FILE"),

		ArtifactBackend: strings.ToLower(getEnvOrDefault("ARTIFACT_BACKEND", ArtifactLocal)),
		AzureAccount:    os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:        os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:  getEnvOrDefault("AZURE_STORAGE_CONTAINER", "vaultguard"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		CacheTTL:  parseDurationOrDefault("CACHE_TTL", 24*time.Hour),

		AllowedImageHosts: parseList(os.Getenv("ALLOWED_IMAGE_HOSTS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ExtractionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, extraction=%s)",
			c.RequestTimeout, c.ExtractionTimeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must be >= 0 (got %d)", c.Workers)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}
	switch c.OCRBackend {
	case BackendCLI, BackendLibrary:
	default:
		return fmt.Errorf("invalid OCR_BACKEND: %q", c.OCRBackend)
	}
	switch c.ArtifactBackend {
	case ArtifactLocal:
	case ArtifactAzure:
		if c.AzureAccount == "" || c.AzureKey == "" {
			return fmt.Errorf("ARTIFACT_BACKEND=azure requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	default:
		return fmt.Errorf("invalid ARTIFACT_BACKEND: %q", c.ArtifactBackend)
	}
	if strings.TrimSpace(c.OutputRoot) == "" {
		return fmt.Errorf("VAULTGUARD_HOME must not be empty")
	}
	return nil
}

func defaultOutputRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "vaultguard"
	}
	return filepath.Join(home, "vaultguard")
}

func defaultTesseractPath() string {
	if runtime.GOOS == "windows" {
		return windowsTesseractPath
	}
	return "/usr/bin/tesseract"
}

func parseLanguages(value string) []string {
	var langs []string
	for _, l := range strings.FieldsFunc(value, func(r rune) bool { return r == '+' || r == ',' }) {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

func parseList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

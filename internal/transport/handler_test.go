package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/risk"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// stubService classifies for real and fakes everything that needs an engine
type stubService struct {
	assessErr error
	gotMode   models.Mode
	gotName   string
}

func (s *stubService) AnalyzeImage(ctx context.Context, path string) (*models.ImageSummary, error) {
	return nil, nil
}

func (s *stubService) AnalyzeFolder(ctx context.Context, folder string) (*models.BatchReport, error) {
	return nil, nil
}

func (s *stubService) ExtractImage(ctx context.Context, path string) (*models.ExtractSummary, error) {
	return nil, nil
}

func (s *stubService) ExtractFolder(ctx context.Context, folder string) ([]models.ExtractSummary, error) {
	return nil, nil
}

func (s *stubService) Improve(ctx context.Context, folder string) (*models.ImprovementReport, error) {
	return nil, nil
}

func (s *stubService) Demo(ctx context.Context, outFolder string) (*models.DemoResult, error) {
	return nil, nil
}

func (s *stubService) Assess(ctx context.Context, name string, img image.Image, mode models.Mode) (*models.AnalysisPayload, error) {
	s.gotMode, s.gotName = mode, name
	if s.assessErr != nil {
		return nil, s.assessErr
	}
	a, _ := s.ClassifyText("Firewall: ON")
	return &models.AnalysisPayload{
		Image:            name,
		OCR:              models.ExtractionResult{Text: "Firewall: ON", Mode: mode},
		SecurityAnalysis: &models.SecurityAnalysis{SecurityAssessment: a, SourceImage: name},
	}, nil
}

func (s *stubService) ClassifyText(text string) (*models.SecurityAssessment, error) {
	c := classifier.New(nil)
	settings, err := c.Classify(text)
	if err != nil {
		return nil, err
	}
	a := risk.NewDeriver(risk.DefaultPolicy()).Derive(settings)
	return &a, nil
}

func (s *stubService) RuleOrder() []string { return classifier.MustDefault().Names() }

type stubEngine struct{ whitelist bool }

func (e stubEngine) ResolveMode(requested models.Mode) models.Mode {
	if requested == models.ModeWindowsSecurity && !e.whitelist {
		return models.ModeDefault
	}
	return requested
}

func (e stubEngine) Capabilities() ocr.Capabilities {
	return ocr.Capabilities{Version: "4.0.0", Major: 4, Whitelist: e.whitelist}
}

func (e stubEngine) EngineName() string { return "tesseract-cli" }

type stubFetcher struct {
	err error
}

func (f stubFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
}

func newTestHandler(svc *stubService, fetcher stubFetcher) http.Handler {
	gin.SetMode(gin.TestMode)
	metrics := observer.NewMetricsObserver()
	metrics.OnEvent(context.Background(), observer.PipelineEvent{EventType: observer.ImageCompleted, ProcessingTime: time.Second})
	return NewHandler(svc, fetcher, metrics, stubEngine{}, testConfig())
}

func pngUpload(t *testing.T, mode string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if mode != "" {
		_ = w.WriteField("mode", mode)
	}
	part, err := w.CreateFormFile("image", "panel.png")
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(1, 1, color.Gray{Y: 255})
	if err := png.Encode(part, img); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	return &body, w.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(&stubService{}, stubFetcher{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "available" || resp.Engine != "tesseract-cli 4.0.0" || resp.PreferredOCR != models.ModeDefault {
		t.Errorf("health = %+v", resp)
	}
}

func TestStats(t *testing.T) {
	h := newTestHandler(&stubService{}, stubFetcher{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	var m observer.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.ImagesCompleted != 1 || m.AvgProcessingS != 1 {
		t.Errorf("stats = %+v", m)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{"mixed panel", `{"text":"Firewall: ON. Antivirus: OFF. Windows Update: ON. Password policy: weak. Backup: ON. BitLocker: ON. UAC: ON"}`, http.StatusOK, ""},
		{"empty text", `{"text":"   "}`, http.StatusUnprocessableEntity, "empty_text"},
		{"bad json", `{"text":`, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubService{}, stubFetcher{})
			req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantError != "" {
				var resp models.ErrorResponse
				_ = json.Unmarshal(rec.Body.Bytes(), &resp)
				if resp.Error != tt.wantError {
					t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
				}
				return
			}
			var a models.SecurityAssessment
			if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
				t.Fatal(err)
			}
			if a.Score != 71.4 || len(a.Settings) != 7 {
				t.Errorf("assessment = %+v", a)
			}
		})
	}
}

func TestEmptyTextBodyIsExact(t *testing.T) {
	h := newTestHandler(&stubService{}, stubFetcher{})
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(`{"text":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"empty_text"}` {
		t.Errorf("body = %s", got)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		wantCode int
		wantMode models.Mode
	}{
		{"default preference", "", http.StatusOK, models.ModeWindowsSecurity},
		{"explicit default", "default", http.StatusOK, models.ModeDefault},
		{"unknown mode", "turbo", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := newTestHandler(svc, stubFetcher{})
			body, ct := pngUpload(t, tt.mode)
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK && (svc.gotMode != tt.wantMode || svc.gotName != "panel.png") {
				t.Errorf("Assess got mode %s name %q", svc.gotMode, svc.gotName)
			}
		})
	}
}

func TestAnalyzeUploadErrors(t *testing.T) {
	h := newTestHandler(&stubService{}, stubFetcher{})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("no form"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing upload status = %d", rec.Code)
	}

	svc := &stubService{assessErr: apperrors.NewEngineTimeoutError("recognition exceeded 60s", nil)}
	h = newTestHandler(svc, stubFetcher{})
	body, ct := pngUpload(t, "")
	req = httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("timeout status = %d", rec.Code)
	}
}

func TestAnalyzeURL(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fetchErr error
		wantCode int
	}{
		{"ok", `{"url":"https://example.com/shots/panel.png"}`, nil, http.StatusOK},
		{"missing url", `{}`, nil, http.StatusBadRequest},
		{"bad scheme", `{"url":"ftp://example.com/a.png"}`, nil, http.StatusBadRequest},
		{"fetch failure", `{"url":"https://example.com/a.png"}`, context.Canceled, http.StatusBadGateway},
		{"undecodable", `{"url":"https://example.com/a.png"}`, apperrors.NewImageReadError("cannot decode image", nil), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := newTestHandler(svc, stubFetcher{err: tt.fetchErr})
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze-url", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK && svc.gotName != "panel.png" {
				t.Errorf("name = %q", svc.gotName)
			}
		})
	}
}

func TestAnalyzeURLHostAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.AllowedImageHosts = []string{"shots.example.com"}
	svc := &stubService{}
	h := NewHandler(svc, stubFetcher{}, observer.NewMetricsObserver(), stubEngine{}, cfg)

	for url, want := range map[string]int{
		"https://shots.example.com/panel.png": http.StatusOK,
		"https://other.example.com/panel.png": http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze-url", strings.NewReader(`{"url":"`+url+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", url, rec.Code, want)
		}
	}
}

func TestRequestSizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.MaxRequestBodySize = 16
	h := NewHandler(&stubService{}, stubFetcher{}, observer.NewMetricsObserver(), stubEngine{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(`{"text":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

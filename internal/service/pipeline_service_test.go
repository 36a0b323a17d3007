package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/artifact"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/demo"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/repository"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/storage"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

const mixedPanel = "Firewall: ON. Antivirus: OFF. Windows Update: ON. Password policy: weak. Backup: ON. BitLocker: ON. UAC: ON"

// fakeExtractor returns the text registered for the width of the image it is given
type fakeExtractor struct {
	mu     sync.Mutex
	texts  map[int]string
	errs   map[int]error
	delays map[int]time.Duration
	whitel bool
	modes  []models.Mode
}

func (f *fakeExtractor) Extract(ctx context.Context, img image.Image, opts ocr.ExtractOptions) (*models.ExtractionResult, error) {
	w := img.Bounds().Dx()
	mode := f.ResolveMode(opts.Mode)
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if d, ok := f.delays[w]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[w]; ok {
		return nil, err
	}
	return &models.ExtractionResult{
		Text:     f.texts[w],
		Language: opts.LanguageTag(),
		Mode:     mode,
		Elapsed:  250 * time.Millisecond,
	}, nil
}

func (f *fakeExtractor) ResolveMode(requested models.Mode) models.Mode {
	if requested == models.ModeWindowsSecurity && !f.whitel {
		return models.ModeDefault
	}
	return requested
}

func (f *fakeExtractor) Capabilities() ocr.Capabilities {
	return ocr.Capabilities{Version: "5.3.0", Major: 5, Minor: 3, Whitelist: f.whitel}
}

func (f *fakeExtractor) EngineName() string { return "fake" }

func blank(w int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, w int) {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, blank(w), nil)
	case ".bmp":
		err = bmp.Encode(&buf, blank(w))
	default:
		err = png.Encode(&buf, blank(w))
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	svc     PipelineService
	ext     *fakeExtractor
	metrics *observer.MetricsObserver
	out     string
	images  string
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	out := t.TempDir()
	store, err := storage.NewLocalStore(out)
	if err != nil {
		t.Fatal(err)
	}
	ext := &fakeExtractor{texts: map[int]string{}, errs: map[int]error{}, delays: map[int]time.Duration{}, whitel: true}
	pub := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	pub.Subscribe(metrics)

	svc, err := NewPipelineService(Dependencies{
		Repository: repository.NewFileImageRepository(),
		Extractor:  ext,
		Store:      store,
		Publisher:  pub,
	}, Options{Workers: workers})
	if err != nil {
		t.Fatalf("NewPipelineService: %v", err)
	}
	return &fixture{svc: svc, ext: ext, metrics: metrics, out: out, images: t.TempDir()}
}

func TestNewPipelineServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewPipelineService(Dependencies{}, Options{}); !apperrors.IsType(err, apperrors.ErrorTypeInternal) {
		t.Errorf("err = %v, want internal error", err)
	}
}

func TestAnalyzeImageWritesArtifacts(t *testing.T) {
	f := newFixture(t, 1)
	f.ext.texts[40] = mixedPanel
	img := filepath.Join(f.images, "panel.png")
	writeImage(t, img, 40)

	summary, err := f.svc.AnalyzeImage(context.Background(), img)
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if summary.Score != 71.4 {
		t.Errorf("score = %v, want 71.4", summary.Score)
	}
	if summary.JSON != filepath.Join(f.out, artifact.ResultsDir, "panel_analysis.json") {
		t.Errorf("json = %q", summary.JSON)
	}

	data, err := os.ReadFile(summary.JSON)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Image            string `json:"image"`
		OCRTextExcerpt   string `json:"ocr_text_excerpt"`
		SecurityAnalysis struct {
			Score       float64  `json:"security_score"`
			SourceImage string   `json:"source_image"`
			OCRTextFile string   `json:"ocr_text_file"`
			OCRTextLen  int      `json:"ocr_text_len"`
			Recs        []string `json:"recommendations"`
		} `json:"security_analysis"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("analysis json: %v", err)
	}
	sa := payload.SecurityAnalysis
	if payload.Image != "panel.png" || sa.SourceImage != "panel.png" || sa.Score != 71.4 {
		t.Errorf("payload = %+v", payload)
	}
	if sa.OCRTextLen != len(mixedPanel) || payload.OCRTextExcerpt != mixedPanel {
		t.Errorf("text len/excerpt = %d/%q", sa.OCRTextLen, payload.OCRTextExcerpt)
	}
	if sa.OCRTextFile != filepath.Join(f.out, artifact.TextDir, "panel_extracted.txt") {
		t.Errorf("ocr_text_file = %q", sa.OCRTextFile)
	}
	if len(sa.Recs) != 2 {
		t.Errorf("recommendations = %q", sa.Recs)
	}

	report, _ := os.ReadFile(summary.Report)
	if !strings.Contains(string(report), "Security score: 71.4%") {
		t.Errorf("report missing score:\n%s", report)
	}
	text, _ := os.ReadFile(sa.OCRTextFile)
	if !strings.HasSuffix(string(text), mixedPanel+"\n") {
		t.Errorf("text artifact = %q", text)
	}
	if f.ext.modes[0] != models.ModeWindowsSecurity {
		t.Errorf("mode = %s, want windows_security", f.ext.modes[0])
	}
}

func TestAnalyzeImageEmptyText(t *testing.T) {
	f := newFixture(t, 1)
	img := filepath.Join(f.images, "blank.png")
	writeImage(t, img, 12)

	summary, err := f.svc.AnalyzeImage(context.Background(), img)
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if summary.Score != 0 {
		t.Errorf("score = %v, want 0", summary.Score)
	}
	data, _ := os.ReadFile(summary.JSON)
	if !strings.Contains(string(data), `"error": "empty_text"`) {
		t.Errorf("analysis json lacks empty_text marker:\n%s", data)
	}
	report, _ := os.ReadFile(summary.Report)
	if !strings.Contains(string(report), "Security score: n/a (empty_text)") {
		t.Errorf("report:\n%s", report)
	}
}

func TestAnalyzeFolderKeepsSortOrder(t *testing.T) {
	f := newFixture(t, 3)
	f.ext.texts[10] = mixedPanel
	f.ext.texts[20] = "Firewall: OFF"
	f.ext.texts[30] = "Firewall: ON"
	writeImage(t, filepath.Join(f.images, "b.png"), 20)
	writeImage(t, filepath.Join(f.images, "a.jpg"), 10)
	writeImage(t, filepath.Join(f.images, "c.bmp"), 30)
	writeImage(t, filepath.Join(f.images, "notes.txt"), 5)

	report, err := f.svc.AnalyzeFolder(context.Background(), f.images)
	if err != nil {
		t.Fatalf("AnalyzeFolder: %v", err)
	}
	if report.Count != 3 || len(report.Results) != 3 {
		t.Fatalf("count = %d, results = %d", report.Count, len(report.Results))
	}
	wantBase := []string{"a_analysis.json", "b_analysis.json", "c_analysis.json"}
	wantScore := []float64{71.4, 0, 14.3}
	for i, r := range report.Results {
		if filepath.Base(r.JSON) != wantBase[i] {
			t.Errorf("result %d = %q, want %s", i, r.JSON, wantBase[i])
		}
		if r.Score == nil || *r.Score != wantScore[i] {
			t.Errorf("result %d score = %v, want %v", i, r.Score, wantScore[i])
		}
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}

	data, err := os.ReadFile(report.Summary)
	if err != nil {
		t.Fatalf("summary artifact: %v", err)
	}
	var saved models.BatchReport
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Folder != f.images || len(saved.Results) != 3 || filepath.Base(saved.Results[0].JSON) != "a_analysis.json" {
		t.Errorf("saved summary = %+v", saved)
	}
	if !strings.HasPrefix(filepath.Base(report.Summary), "SUMMARY_") {
		t.Errorf("summary name = %q", report.Summary)
	}

	m := f.metrics.GetMetrics()
	if m.ImagesCompleted != 3 || m.Batches != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestAnalyzeFolderRecordsFailures(t *testing.T) {
	f := newFixture(t, 2)
	f.ext.texts[10] = mixedPanel
	f.ext.errs[20] = apperrors.NewEngineTimeoutError("recognition exceeded 60s", context.DeadlineExceeded)
	writeImage(t, filepath.Join(f.images, "a.png"), 10)
	writeImage(t, filepath.Join(f.images, "b.png"), 20)
	if err := os.WriteFile(filepath.Join(f.images, "c.bmp"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.AnalyzeFolder(context.Background(), f.images)
	if err != nil {
		t.Fatalf("AnalyzeFolder: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	if report.Results[0].Failed() {
		t.Errorf("a.png failed: %s", report.Results[0].Error)
	}
	tests := []struct {
		idx  int
		file string
		kind string
	}{
		{1, "b.png", string(apperrors.ErrorTypeEngineTimeout)},
		{2, "c.bmp", string(apperrors.ErrorTypeImageRead)},
	}
	for _, tt := range tests {
		r := report.Results[tt.idx]
		if !r.Failed() || r.File != tt.file || !strings.Contains(r.Error, tt.kind) {
			t.Errorf("result %d = %+v, want %s failure", tt.idx, r, tt.kind)
		}
	}
	if _, err := os.Stat(filepath.Join(f.out, artifact.ResultsDir, "c_analysis.json")); !os.IsNotExist(err) {
		t.Error("failed image left an analysis artifact")
	}
	if m := f.metrics.GetMetrics(); m.ImagesFailed != 2 {
		t.Errorf("failed count = %d, want 2", m.ImagesFailed)
	}
}

func TestAnalyzeFolderInvalidPath(t *testing.T) {
	f := newFixture(t, 1)
	file := filepath.Join(f.images, "a.png")
	writeImage(t, file, 10)

	for _, p := range []string{filepath.Join(f.images, "missing"), file} {
		if _, err := f.svc.AnalyzeFolder(context.Background(), p); !apperrors.IsType(err, apperrors.ErrorTypeInvalidPath) {
			t.Errorf("AnalyzeFolder(%s) err = %v, want invalid_path", p, err)
		}
	}
}

func TestAnalyzeFolderEmpty(t *testing.T) {
	f := newFixture(t, 1)
	report, err := f.svc.AnalyzeFolder(context.Background(), f.images)
	if err != nil {
		t.Fatalf("AnalyzeFolder: %v", err)
	}
	if report.Count != 0 || report.Results == nil || len(report.Results) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestAnalyzeFolderCancelled(t *testing.T) {
	f := newFixture(t, 1)
	writeImage(t, filepath.Join(f.images, "a.png"), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.AnalyzeFolder(ctx, f.images); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAnalyzeFolderSharedBaseNameLastSortedWins(t *testing.T) {
	f := newFixture(t, 4)
	f.ext.texts[10] = mixedPanel
	f.ext.texts[20] = "Firewall: ON"
	// the earlier image in sort order finishes last
	f.ext.delays[10] = 150 * time.Millisecond
	writeImage(t, filepath.Join(f.images, "a.jpg"), 10)
	writeImage(t, filepath.Join(f.images, "a.png"), 20)
	writeImage(t, filepath.Join(f.images, "b.png"), 20)

	report, err := f.svc.AnalyzeFolder(context.Background(), f.images)
	if err != nil {
		t.Fatalf("AnalyzeFolder: %v", err)
	}
	if len(report.Results) != 3 || *report.Results[0].Score != 71.4 || *report.Results[1].Score != 14.3 {
		t.Fatalf("results = %+v", report.Results)
	}

	data, err := os.ReadFile(filepath.Join(f.out, artifact.ResultsDir, "a_analysis.json"))
	if err != nil {
		t.Fatal(err)
	}
	var payload models.AnalysisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("analysis json: %v", err)
	}
	if payload.Image != "a.png" || payload.SecurityAnalysis.ScoreOrZero() != 14.3 {
		t.Errorf("a_analysis.json describes %s (score %v), want a.png", payload.Image, payload.SecurityAnalysis.ScoreOrZero())
	}
	text, _ := os.ReadFile(filepath.Join(f.out, artifact.TextDir, "a_extracted.txt"))
	if !strings.Contains(string(text), "# Image: a.png") {
		t.Errorf("a_extracted.txt:\n%s", text)
	}
}

func TestArtifactGroups(t *testing.T) {
	images := []string{"/in/A.png", "/in/a.jpg", "/in/b.png", "/in/c.bmp", "/in/c.tif"}
	got := artifactGroups(images)
	want := [][]int{{0, 1}, {2}, {3, 4}}
	if len(got) != len(want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
	for g := range want {
		if len(got[g]) != len(want[g]) {
			t.Fatalf("groups = %v, want %v", got, want)
		}
		for k := range want[g] {
			if got[g][k] != want[g][k] {
				t.Errorf("groups = %v, want %v", got, want)
			}
		}
	}
}

func TestExtractFolder(t *testing.T) {
	f := newFixture(t, 2)
	f.ext.texts[10] = "Firewall: ON"
	writeImage(t, filepath.Join(f.images, "B.png"), 10)
	writeImage(t, filepath.Join(f.images, "a.png"), 10)
	if err := os.WriteFile(filepath.Join(f.images, "c.png"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := f.svc.ExtractFolder(context.Background(), f.images)
	if err != nil {
		t.Fatalf("ExtractFolder: %v", err)
	}
	if len(results) != 3 || results[0].Image != "a.png" || results[1].Image != "B.png" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].TextLen != len("Firewall: ON") || results[0].Mode != models.ModeWindowsSecurity {
		t.Errorf("a.png = %+v", results[0])
	}
	if results[2].Error == "" {
		t.Error("c.png should fail")
	}
	if _, err := os.Stat(filepath.Join(f.out, artifact.TextDir, "a_extracted.txt")); err != nil {
		t.Errorf("text artifact: %v", err)
	}
}

func TestImproveReport(t *testing.T) {
	f := newFixture(t, 2)
	f.ext.whitel = false
	f.ext.texts[10] = "Windows Security\nFirewall: ON\nAntivirus: ON"
	f.ext.texts[20] = "Backup off"
	writeImage(t, filepath.Join(f.images, "a.png"), 10)
	writeImage(t, filepath.Join(f.images, "b.png"), 20)
	if err := os.WriteFile(filepath.Join(f.images, "c.png"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.images, "b.gt.txt"), []byte("Backup off"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.Improve(context.Background(), f.images)
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if report.TotalImages != 3 || report.OKImages != 2 {
		t.Errorf("total/ok = %d/%d", report.TotalImages, report.OKImages)
	}
	if report.EngineVersion != "tesseract 5.3.0" {
		t.Errorf("engine version = %q", report.EngineVersion)
	}

	a, b, c := report.DetailedResults[0], report.DetailedResults[1], report.DetailedResults[2]
	if a.KeywordCount != 3 || strings.Join(a.KeywordsFound, ",") != "firewall,antivirus,security" || a.Accuracy != nil {
		t.Errorf("a.png = %+v", a)
	}
	if a.Mode != models.ModeDefault {
		t.Errorf("mode = %s, want fallback to default", a.Mode)
	}
	if b.KeywordCount != 1 || b.Accuracy == nil || b.Accuracy.CER != 0 || b.Accuracy.WER != 0 {
		t.Errorf("b.png = %+v", b)
	}
	if c.Error == "" || c.KeywordCount != 0 {
		t.Errorf("c.png = %+v", c)
	}

	if report.AvgKeywordsPerImage != 2 {
		t.Errorf("avg keywords = %v, want 2", report.AvgKeywordsPerImage)
	}
	if report.AvgProcessingTimeS != 0.25 {
		t.Errorf("avg time = %v, want 0.25", report.AvgProcessingTimeS)
	}
	if report.Path != filepath.Join(f.out, artifact.ImprovementReportName) {
		t.Errorf("path = %q", report.Path)
	}
	data, err := os.ReadFile(report.Path)
	if err != nil {
		t.Fatalf("report artifact: %v", err)
	}
	var saved struct {
		DetailedResults []map[string]interface{} `json:"detailed_results"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if failed := saved.DetailedResults[2]; len(failed) != 2 || failed["file"] != "c.png" || failed["error"] == nil {
		t.Errorf("failed entry = %v, want only file and error", failed)
	}
	if ok := saved.DetailedResults[1]; ok["keyword_count"] != float64(1) {
		t.Errorf("ok entry = %v", ok)
	}
}

func TestDemoRunsPipeline(t *testing.T) {
	f := newFixture(t, 1)
	f.ext.texts[demo.Width] = demo.Text()
	outFolder := filepath.Join(f.images, "test_images")

	res, err := f.svc.Demo(context.Background(), outFolder)
	if err != nil {
		t.Fatalf("Demo: %v", err)
	}
	if res.ImagePath != filepath.Join(outFolder, demo.FileName) {
		t.Errorf("image = %q", res.ImagePath)
	}
	if res.Accuracy.CER != 0 || res.Accuracy.WER != 0 {
		t.Errorf("accuracy = %+v", res.Accuracy)
	}
	if res.Summary == nil || filepath.Base(res.Summary.JSON) != "demo_test_analysis.json" {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestClassifyText(t *testing.T) {
	f := newFixture(t, 1)
	a, err := f.svc.ClassifyText(mixedPanel)
	if err != nil {
		t.Fatalf("ClassifyText: %v", err)
	}
	if a.Score != 71.4 || len(a.Settings) != 7 {
		t.Errorf("assessment = %+v", a)
	}
	if _, err := f.svc.ClassifyText("  "); !errors.Is(err, classifier.ErrEmptyText) {
		t.Errorf("err = %v, want empty_text", err)
	}
}

func TestAssess(t *testing.T) {
	f := newFixture(t, 1)
	f.ext.texts[16] = mixedPanel

	payload, err := f.svc.Assess(context.Background(), "upload.png", blank(16), models.ModeDefault)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if payload.Image != "upload.png" || payload.SecurityAnalysis.ScoreOrZero() != 71.4 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.OCR.Mode != models.ModeDefault {
		t.Errorf("mode = %s", payload.OCR.Mode)
	}
	if _, err := f.svc.Assess(context.Background(), "x.png", blank(16), models.Mode("fast")); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestRuleOrder(t *testing.T) {
	f := newFixture(t, 1)
	if got := f.svc.RuleOrder(); len(got) != 7 || got[0] != "firewall" || got[6] != "uac" {
		t.Errorf("RuleOrder() = %v", got)
	}
}

package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/accuracy"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/artifact"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/demo"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/keywords"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// GroundTruthSuffix names the optional reference transcript next to an image,
// e.g. panel.png -> panel.gt.txt
const GroundTruthSuffix = ".gt.txt"

func (s *pipelineService) Improve(ctx context.Context, folder string) (*models.ImprovementReport, error) {
	images, err := s.repo.ListImages(ctx, folder)
	if err != nil {
		return nil, err
	}

	results := make([]models.ImprovementEntry, len(images))
	err = forEachImage(ctx, images, s.workers, func(ctx context.Context, i int) {
		results[i] = s.improveImage(ctx, images[i])
	})
	if err != nil {
		return nil, err
	}

	var kw, secs []float64
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		kw = append(kw, float64(r.KeywordCount))
		secs = append(secs, r.ProcessingTimeS)
	}

	report := &models.ImprovementReport{
		TestDate:            models.FormatTimestamp(s.now()),
		EngineVersion:       s.extractor.Capabilities().VersionTag(),
		TotalImages:         len(results),
		OKImages:            len(kw),
		AvgKeywordsPerImage: roundTo(mean(kw), 2),
		AvgProcessingTimeS:  roundTo(mean(secs), 3),
		DetailedResults:     results,
	}
	data, err := artifact.JSON(report)
	if err != nil {
		return nil, apperrors.NewInternalError("encode improvement report", err)
	}
	if report.Path, err = s.put(ctx, artifact.ImprovementReportName, data); err != nil {
		return nil, err
	}
	return report, nil
}

// improveImage runs keyword-assisted extraction on one image. Failures are recorded
// as {file, error}.
func (s *pipelineService) improveImage(ctx context.Context, path string) models.ImprovementEntry {
	entry := models.ImprovementEntry{File: filepath.Base(path)}

	img, err := s.repo.LoadImage(ctx, path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	res, err := s.extractor.Extract(ctx, img, s.preferredOptions())
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	found := keywords.Scan(res.Text, s.keywords)
	entry.Mode = res.Mode
	entry.ProcessingTimeS = res.Elapsed.Seconds()
	entry.KeywordCount = len(found)
	entry.KeywordsFound = found
	entry.TextPreview = artifact.Truncate(res.Text, artifact.PreviewLength)

	if ref, ok := groundTruth(path); ok {
		acc := accuracy.Compare(ref, res.Text)
		entry.Accuracy = &acc
	}
	return entry
}

func groundTruth(imagePath string) (string, bool) {
	p := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + GroundTruthSuffix
	data, err := os.ReadFile(p)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithImage(imagePath).WithError(err).Warn("Cannot read ground truth")
		}
		return "", false
	}
	return string(data), true
}

func (s *pipelineService) Demo(ctx context.Context, outFolder string) (*models.DemoResult, error) {
	data, err := demo.RenderPNG()
	if err != nil {
		return nil, apperrors.NewInternalError("render demo image", err)
	}
	if err := os.MkdirAll(outFolder, 0o755); err != nil {
		return nil, apperrors.NewInvalidPathError(outFolder, err)
	}
	path := filepath.Join(outFolder, demo.FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, apperrors.NewInvalidPathError(path, err)
	}
	logger.WithImage(path).Info("Demo image created")

	summary, payload, err := s.runImage(ctx, path)
	if err != nil {
		return nil, err
	}
	return &models.DemoResult{
		ImagePath: path,
		Summary:   summary,
		Accuracy:  accuracy.Compare(demo.Text(), payload.OCR.Text),
	}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

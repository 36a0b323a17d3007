// Package service drives the extraction pipeline for single images, folders and the
// demo and improvement runs, and persists their artifacts.
package service

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"time"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/artifact"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/keywords"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/ocr"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/repository"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/risk"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/storage"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// PipelineService defines the operations exposed to the CLI and the HTTP API
type PipelineService interface {
	// AnalyzeImage runs the full pipeline for one image file and writes its artifacts
	AnalyzeImage(ctx context.Context, path string) (*models.ImageSummary, error)
	// AnalyzeFolder analyzes every supported image in folder; single-image failures
	// are recorded in the report and never abort the run
	AnalyzeFolder(ctx context.Context, folder string) (*models.BatchReport, error)

	ExtractImage(ctx context.Context, path string) (*models.ExtractSummary, error)
	ExtractFolder(ctx context.Context, folder string) ([]models.ExtractSummary, error)

	Improve(ctx context.Context, folder string) (*models.ImprovementReport, error)
	Demo(ctx context.Context, outFolder string) (*models.DemoResult, error)

	// Assess analyzes an in-memory image without writing artifacts
	Assess(ctx context.Context, name string, img image.Image, mode models.Mode) (*models.AnalysisPayload, error)
	ClassifyText(text string) (*models.SecurityAssessment, error)

	// RuleOrder returns setting names in report order
	RuleOrder() []string
}

// Dependencies are the collaborators of the pipeline service
type Dependencies struct {
	Repository repository.ImageRepository
	Extractor  ocr.Extractor
	Classifier classifier.Classifier
	Deriver    risk.Deriver
	Store      storage.ArtifactStore
	Publisher  observer.Subject
}

// Options tune the pipeline service
type Options struct {
	// Workers bounds concurrent images in folder runs
	Workers   int
	Languages []string
	// Keywords are scanned for in improvement runs
	Keywords []string
}

type pipelineService struct {
	repo       repository.ImageRepository
	extractor  ocr.Extractor
	classifier classifier.Classifier
	deriver    risk.Deriver
	store      storage.ArtifactStore
	publisher  observer.Subject

	workers   int
	languages []string
	keywords  []string
	now       func() time.Time
}

// NewPipelineService creates a pipeline service. Repository, Extractor and Store are
// required; a nil Classifier or Deriver selects the default rule table and policy.
func NewPipelineService(deps Dependencies, opts Options) (PipelineService, error) {
	if deps.Repository == nil || deps.Extractor == nil || deps.Store == nil {
		return nil, apperrors.NewInternalError("pipeline service is missing a collaborator", nil)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(nil)
	}
	if deps.Deriver == nil {
		deps.Deriver = risk.NewDeriver(risk.PolicyFor(deps.Classifier.Rules()))
	}
	if deps.Publisher == nil {
		deps.Publisher = observer.NewEventPublisher()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if len(opts.Languages) == 0 {
		opts.Languages = ocr.DefaultOptions().Languages
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = keywords.Defaults()
	}

	return &pipelineService{
		repo:       deps.Repository,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		deriver:    deps.Deriver,
		store:      deps.Store,
		publisher:  deps.Publisher,
		workers:    opts.Workers,
		languages:  opts.Languages,
		keywords:   opts.Keywords,
		now:        time.Now,
	}, nil
}

func (s *pipelineService) RuleOrder() []string {
	return s.classifier.Rules().Names()
}

// preferredOptions asks for windows_security; the extractor falls back to default
// when the engine cannot honour it.
func (s *pipelineService) preferredOptions() ocr.ExtractOptions {
	return ocr.WindowsSecurityOptions().WithLanguages(s.languages...)
}

func (s *pipelineService) AnalyzeImage(ctx context.Context, path string) (*models.ImageSummary, error) {
	summary, _, err := s.runImage(ctx, path)
	return summary, err
}

// runImage wraps analyzeImage with pipeline events
func (s *pipelineService) runImage(ctx context.Context, path string) (*models.ImageSummary, *models.AnalysisPayload, error) {
	start := time.Now()
	s.publish(ctx, observer.PipelineEvent{EventType: observer.ImageStarted, Image: filepath.Base(path)})

	summary, payload, err := s.analyzeImage(ctx, path)
	if err != nil {
		s.publishFailure(ctx, path, err)
		return nil, nil, err
	}

	s.publish(ctx, observer.PipelineEvent{
		EventType:      observer.ImageCompleted,
		Image:          filepath.Base(path),
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"score": summary.Score},
	})
	return summary, payload, nil
}

func (s *pipelineService) analyzeImage(ctx context.Context, path string) (*models.ImageSummary, *models.AnalysisPayload, error) {
	img, err := s.repo.LoadImage(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.extractor.Extract(ctx, img, s.preferredOptions())
	if err != nil {
		return nil, nil, err
	}

	textFile, err := s.put(ctx, artifact.TextKey(path), artifact.ExtractText(path, res))
	if err != nil {
		return nil, nil, err
	}

	payload := s.payload(filepath.Base(path), res)
	payload.SecurityAnalysis.OCRTextFile = textFile

	data, err := artifact.JSON(payload)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("encode analysis", err)
	}
	jsonPath, err := s.put(ctx, artifact.AnalysisKey(path), data)
	if err != nil {
		return nil, nil, err
	}
	reportPath, err := s.put(ctx, artifact.ReportKey(path), artifact.Report(payload, s.RuleOrder()))
	if err != nil {
		return nil, nil, err
	}

	return &models.ImageSummary{
		JSON:   jsonPath,
		Report: reportPath,
		Score:  payload.SecurityAnalysis.ScoreOrZero(),
	}, payload, nil
}

func (s *pipelineService) Assess(ctx context.Context, name string, img image.Image, mode models.Mode) (*models.AnalysisPayload, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError("unknown mode "+string(mode), nil)
	}
	start := time.Now()
	s.publish(ctx, observer.PipelineEvent{EventType: observer.ImageStarted, Image: name})

	res, err := s.extractor.Extract(ctx, img, ocr.DefaultOptions().WithMode(mode).WithLanguages(s.languages...))
	if err != nil {
		s.publishFailure(ctx, name, err)
		return nil, err
	}
	payload := s.payload(name, res)

	s.publish(ctx, observer.PipelineEvent{
		EventType:      observer.ImageCompleted,
		Image:          name,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"score": payload.SecurityAnalysis.ScoreOrZero()},
	})
	return payload, nil
}

func (s *pipelineService) ClassifyText(text string) (*models.SecurityAssessment, error) {
	settings, err := s.classifier.Classify(text)
	if err != nil {
		return nil, err
	}
	a := s.deriver.Derive(settings)
	return &a, nil
}

// payload builds the analysis artifact for an extraction. Empty text is recorded as
// the empty_text marker instead of an assessment.
func (s *pipelineService) payload(name string, res *models.ExtractionResult) *models.AnalysisPayload {
	analysis := &models.SecurityAnalysis{
		SourceImage: name,
		OCRTextLen:  len([]rune(res.Text)),
	}
	assessment, err := s.ClassifyText(res.Text)
	switch {
	case err == nil:
		analysis.SecurityAssessment = assessment
	case errors.Is(err, classifier.ErrEmptyText):
		analysis.Error = models.EmptyTextMarker
	default:
		analysis.Error = err.Error()
	}

	return &models.AnalysisPayload{
		Timestamp:        s.now().Format(models.FileStampLayout),
		Image:            name,
		OCR:              *res,
		SecurityAnalysis: analysis,
		OCRTextExcerpt:   artifact.Truncate(res.Text, artifact.ExcerptLength),
	}
}

func (s *pipelineService) put(ctx context.Context, key string, data []byte) (string, error) {
	loc, err := s.store.Put(ctx, key, data)
	if err != nil {
		return "", apperrors.NewStorageError("write "+key, err)
	}
	return loc, nil
}

func (s *pipelineService) publish(ctx context.Context, event observer.PipelineEvent) {
	s.publisher.NotifyObservers(ctx, event)
}

func (s *pipelineService) publishFailure(ctx context.Context, path string, err error) {
	s.publish(ctx, observer.PipelineEvent{
		EventType:    observer.ImageFailed,
		Image:        filepath.Base(path),
		ErrorMessage: err.Error(),
	})
}

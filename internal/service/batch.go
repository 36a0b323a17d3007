package service

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/artifact"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/observer"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// forEach runs fn for indexes 0..n-1 on at most workers goroutines. fn stores its own
// result by index, so callers see results in input order whatever the completion order.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// artifactGroups partitions image indexes by artifact base name. Images in one group
// write the same artifact keys; indexes stay in sort order within a group.
func artifactGroups(images []string) [][]int {
	var groups [][]int
	pos := make(map[string]int, len(images))
	for i, p := range images {
		base := strings.ToLower(artifact.BaseName(p))
		g, ok := pos[base]
		if !ok {
			g = len(groups)
			pos[base] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// forEachImage is forEach over images where each artifact group runs sequentially on
// one worker, so the last image in sort order owns shared artifact names.
func forEachImage(ctx context.Context, images []string, workers int, fn func(ctx context.Context, i int)) error {
	groups := artifactGroups(images)
	return forEach(ctx, len(groups), workers, func(ctx context.Context, g int) {
		for _, i := range groups[g] {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i)
		}
	})
}

func (s *pipelineService) AnalyzeFolder(ctx context.Context, folder string) (*models.BatchReport, error) {
	images, err := s.repo.ListImages(ctx, folder)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.BatchStarted,
		RunID:     runID,
		Metadata:  map[string]interface{}{"folder": folder, "count": len(images)},
	})

	results := make([]models.BatchEntry, len(images))
	err = forEachImage(ctx, images, s.workers, func(ctx context.Context, i int) {
		summary, err := s.AnalyzeImage(ctx, images[i])
		if err != nil {
			results[i] = models.EntryFromError(filepath.Base(images[i]), err)
			return
		}
		results[i] = models.EntryFromSummary(summary)
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &models.BatchReport{
		RunID:     runID,
		Folder:    folder,
		Count:     len(images),
		Results:   results,
		Timestamp: models.FormatTimestamp(now),
	}
	data, err := artifact.JSON(report)
	if err != nil {
		return nil, apperrors.NewInternalError("encode summary", err)
	}
	if report.Summary, err = s.put(ctx, artifact.SummaryKey(now), data); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	s.publish(ctx, observer.PipelineEvent{
		EventType:      observer.BatchCompleted,
		RunID:          runID,
		ProcessingTime: time.Since(start),
		Success:        failed == 0,
		Metadata:       map[string]interface{}{"count": len(images), "failed": failed, "summary": report.Summary},
	})
	return report, nil
}

func (s *pipelineService) ExtractImage(ctx context.Context, path string) (*models.ExtractSummary, error) {
	img, err := s.repo.LoadImage(ctx, path)
	if err != nil {
		return nil, err
	}
	res, err := s.extractor.Extract(ctx, img, s.preferredOptions())
	if err != nil {
		return nil, err
	}
	textFile, err := s.put(ctx, artifact.TextKey(path), artifact.ExtractText(path, res))
	if err != nil {
		return nil, err
	}

	logger.WithImage(path).WithField("chars", len([]rune(res.Text))).Info("Text extracted")
	return &models.ExtractSummary{
		Image:           filepath.Base(path),
		TextFile:        textFile,
		TextLen:         len([]rune(res.Text)),
		Mode:            res.Mode,
		ProcessingTimeS: res.Elapsed.Seconds(),
	}, nil
}

func (s *pipelineService) ExtractFolder(ctx context.Context, folder string) ([]models.ExtractSummary, error) {
	images, err := s.repo.ListImages(ctx, folder)
	if err != nil {
		return nil, err
	}

	results := make([]models.ExtractSummary, len(images))
	err = forEachImage(ctx, images, s.workers, func(ctx context.Context, i int) {
		summary, err := s.ExtractImage(ctx, images[i])
		if err != nil {
			logger.WithImage(images[i]).WithError(err).Warn("Extraction failed")
			results[i] = models.ExtractSummary{Image: filepath.Base(images[i]), Error: err.Error()}
			return
		}
		results[i] = *summary
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

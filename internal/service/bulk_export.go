package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExportArchived renders the report of the archived assessment id.
func ExportArchived(ctx context.Context, store port.KVStore, cat *catalog.Catalog, id string, generatedAt time.Time, logger *zap.Logger) (string, error) {
	snap, err := ReadArchived(ctx, store, id, logger)
	if err != nil {
		return "", err
	}
	out := ExportText(snap.Assessment, snap.Company, snap.Answers, cat.Questions(), generatedAt)
	if out == "" {
		return "", &domain.ErrNotFound{Resource: "assessment report", ID: id}
	}
	return out, nil
}

// ExportAll writes assessment-{id}.txt into dir for every completed entry of
// the index, at most concurrency at a time. It returns the number of files
// written; the first failure cancels the remaining exports.
func ExportAll(ctx context.Context, store port.KVStore, index *Index, cat *catalog.Catalog, dir string, concurrency int, logger *zap.Logger) (int, error) {
	ctx, span := tracer.Start(ctx, "ExportAll")
	defer span.End()

	entries, err := index.Completed(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	now := time.Now()
	var written atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, e := range entries {
		g.Go(func() error {
			report, err := ExportArchived(gCtx, store, cat, e.ID, now, logger)
			if err != nil {
				return fmt.Errorf("export %s: %w", e.ID, err)
			}
			path := filepath.Join(dir, ReportFileName(e.ID))
			if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			written.Add(1)
			logger.Debug("report exported", zap.String("assessment_id", e.ID), zap.String("path", path))
			return nil
		})
	}
	err = g.Wait()
	return int(written.Load()), err
}

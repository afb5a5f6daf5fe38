package usecase

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/fsx"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.uber.org/zap"
)

type PackagerConfig struct {
	StagingDir  string
	ArchivePath string
	// ClassCount > 0 turns on label validation: every class_id must be in
	// [0, ClassCount) and every geometry value in [0, 1].
	ClassCount int
}

type PackageResult struct {
	ArchivePath string
	Pairs       []entity.LabelPair
	Report      *entity.ReconciliationReport
}

type DatasetPackager struct {
	reconciler *LabelReconciler
	archiver   port.Archiver
	logger     *zap.Logger
	cfg        PackagerConfig
}

func NewDatasetPackager(reconciler *LabelReconciler, archiver port.Archiver, logger *zap.Logger, cfg PackagerConfig) *DatasetPackager {
	return &DatasetPackager{reconciler: reconciler, archiver: archiver, logger: logger, cfg: cfg}
}

// Package stages every complete pair found in dir right now and archives
// them, image then label, in stem order. Incomplete pairs are left out.
func (p *DatasetPackager) Package(ctx context.Context, dir string) (*PackageResult, error) {
	if err := p.checkLayout(dir); err != nil {
		return nil, err
	}

	report, err := p.reconciler.Reconcile(dir)
	if err != nil {
		return nil, err
	}

	pairs := report.CompletePairs()
	if len(pairs) == 0 {
		return nil, &entity.NoCompletePairsError{Directory: dir, Images: report.ImageCount, Labels: report.LabelCount}
	}

	if p.cfg.ClassCount > 0 {
		for _, pair := range pairs {
			if err := ValidateLabelFile(pair.LabelPath, p.cfg.ClassCount); err != nil {
				return nil, err
			}
		}
	}

	if err := fsx.ResetDir(p.cfg.StagingDir); err != nil {
		return nil, entity.WrapStage(entity.StagePackage, err)
	}

	staged := make([]string, 0, 2*len(pairs))
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, entity.WrapStage(entity.StagePackage, err)
		}
		for _, src := range []string{pair.ImagePath, pair.LabelPath} {
			dst := filepath.Join(p.cfg.StagingDir, filepath.Base(src))
			if err := fsx.CopyFile(src, dst); err != nil {
				return nil, entity.WrapStage(entity.StagePackage, fmt.Errorf("stage %s: %w", src, err))
			}
			staged = append(staged, dst)
		}
	}

	if err := p.archiver.CreateArchive(ctx, staged, p.cfg.ArchivePath); err != nil {
		return nil, entity.WrapStage(entity.StagePackage, fmt.Errorf("create archive: %w", err))
	}
	metrics.PairsPackagedTotal.Add(float64(len(pairs)))

	p.logger.Info("dataset packaged",
		zap.String("dir", dir),
		zap.String("archive", p.cfg.ArchivePath),
		zap.Int("pairs", len(pairs)),
		zap.Int("skipped_images", len(report.UnmatchedImages)),
	)

	return &PackageResult{ArchivePath: p.cfg.ArchivePath, Pairs: pairs, Report: report}, nil
}

// checkLayout refuses a staging dir that would wipe the input directory.
func (p *DatasetPackager) checkLayout(dir string) error {
	if p.cfg.StagingDir == "" || p.cfg.ArchivePath == "" {
		return entity.WrapStage(entity.StagePackage, fmt.Errorf("staging dir and archive path are required"))
	}
	in, err := filepath.Abs(dir)
	if err != nil {
		return entity.WrapStage(entity.StagePackage, err)
	}
	staging, err := filepath.Abs(p.cfg.StagingDir)
	if err != nil {
		return entity.WrapStage(entity.StagePackage, err)
	}
	if rel, err := filepath.Rel(staging, in); err == nil && !strings.HasPrefix(rel, "..") {
		return entity.WrapStage(entity.StagePackage,
			fmt.Errorf("staging dir %s contains the input dir %s", p.cfg.StagingDir, dir))
	}
	return nil
}

// ValidateLabelFile checks every non-blank line of a YOLO label file:
// "class_id cx cy w h" with geometry normalized to [0, 1].
func ValidateLabelFile(path string, classCount int) error {
	f, err := os.Open(path)
	if err != nil {
		return entity.WrapStage(entity.StagePackage, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return &entity.InvalidLabelError{Path: path, Line: n, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return &entity.InvalidLabelError{Path: path, Line: n, Reason: fmt.Sprintf("class id %q is not an integer", fields[0])}
		}
		if id < 0 || id >= classCount {
			return &entity.InvalidLabelError{Path: path, Line: n, Reason: fmt.Sprintf("class id %d out of range for %d classes", id, classCount)}
		}
		for _, v := range fields[1:] {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil || x < 0 || x > 1 {
				return &entity.InvalidLabelError{Path: path, Line: n, Reason: fmt.Sprintf("geometry value %q not in [0,1]", v)}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return entity.WrapStage(entity.StagePackage, err)
	}
	return nil
}

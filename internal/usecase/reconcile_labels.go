package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// ClassesFileName is the class list a labeling tool exports next to the
// labels. It is never a label file.
const ClassesFileName = "classes.txt"

const labelExtension = ".txt"

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type LabelReconciler struct {
	logger *zap.Logger
}

func NewLabelReconciler(logger *zap.Logger) *LabelReconciler {
	return &LabelReconciler{logger: logger}
}

// Reconcile scans dir once and joins images to label files by stem. Only
// failing to read dir is an error; every mismatch is reported as data.
func (r *LabelReconciler) Reconcile(dir string) (*entity.ReconciliationReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, entity.WrapStage(entity.StageReconcile, fmt.Errorf("read labels dir: %w", err))
	}

	report := &entity.ReconciliationReport{Directory: dir}
	images := make(map[string][]string)
	labels := make(map[string][]string)

	for _, e := range entries {
		name := e.Name()
		// Hidden files include in-flight temp writes.
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		path := filepath.Join(dir, name)

		switch {
		case imageExtensions[ext]:
			images[stem] = append(images[stem], path)
			report.ImageCount++
		case ext == labelExtension && !strings.EqualFold(name, ClassesFileName):
			labels[stem] = append(labels[stem], path)
			report.LabelCount++
		}
	}

	for _, stem := range unionStems(images, labels) {
		imgs, lbls := images[stem], labels[stem]
		switch {
		case len(imgs) > 1 || len(lbls) > 1:
			report.AmbiguousStems = append(report.AmbiguousStems, stem)
		case len(imgs) == 0:
			report.UnmatchedLabels = append(report.UnmatchedLabels, stem)
			report.Pairs = append(report.Pairs, entity.LabelPair{Stem: stem, LabelPath: lbls[0]})
		case len(lbls) == 0:
			report.UnmatchedImages = append(report.UnmatchedImages, stem)
			report.Pairs = append(report.Pairs, entity.LabelPair{Stem: stem, ImagePath: imgs[0]})
		default:
			report.Pairs = append(report.Pairs, entity.LabelPair{Stem: stem, ImagePath: imgs[0], LabelPath: lbls[0]})
		}
	}

	metrics.UnmatchedItemsTotal.WithLabelValues("image").Add(float64(len(report.UnmatchedImages)))
	metrics.UnmatchedItemsTotal.WithLabelValues("label").Add(float64(len(report.UnmatchedLabels)))

	log := r.logger.With(zap.String("dir", dir))
	log.Info("labels reconciled",
		zap.Int("images", report.ImageCount),
		zap.Int("labels", report.LabelCount),
		zap.Int("complete_pairs", len(report.CompletePairs())),
	)
	if len(report.UnmatchedImages) > 0 {
		log.Warn("images without labels will be skipped", zap.Strings("stems", report.UnmatchedImages))
	}
	if len(report.UnmatchedLabels) > 0 {
		log.Warn("labels without images (orphaned annotations)", zap.Strings("stems", report.UnmatchedLabels))
	}
	if len(report.AmbiguousStems) > 0 {
		log.Warn("several images or labels share a stem and will be skipped", zap.Strings("stems", report.AmbiguousStems))
	}
	return report, nil
}

func unionStems(images, labels map[string][]string) []string {
	stems := make([]string, 0, len(images)+len(labels))
	for s := range images {
		stems = append(stems, s)
	}
	for s := range labels {
		if _, ok := images[s]; !ok {
			stems = append(stems, s)
		}
	}
	sort.Strings(stems)
	return stems
}

package usecase

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/fsx"
	"go.uber.org/zap"
)

const (
	minMaxBatches   = 6000
	batchesPerClass = 2000
	boxParams       = 5 // x, y, w, h, objectness
	anchorsPerScale = 3
)

// DeriveTrainingParams computes the detector configuration for n classes.
func DeriveTrainingParams(n int) (entity.TrainingParams, error) {
	if n <= 0 {
		return entity.TrainingParams{}, &entity.InvalidClassCountError{Count: n}
	}
	maxBatches := max(minMaxBatches, n*batchesPerClass)
	return entity.TrainingParams{
		Classes:    n,
		Filters:    (n + boxParams) * anchorsPerScale,
		MaxBatches: maxBatches,
		Step1:      maxBatches * 8 / 10,
		Step2:      maxBatches * 9 / 10,
	}, nil
}

type ConfigPaths struct {
	Names    string
	Template string
	Output   string
}

// ConfigWriter produces the names artifact and, when a template exists,
// the tuned model configuration.
type ConfigWriter struct {
	paths  ConfigPaths
	logger *zap.Logger
}

func NewConfigWriter(paths ConfigPaths, logger *zap.Logger) *ConfigWriter {
	return &ConfigWriter{paths: paths, logger: logger}
}

// Write always writes the names file. The model config is only written
// when the template is present; check ConfigArtifacts.FullConfig.
func (w *ConfigWriter) Write(classes entity.ClassList) (*entity.ConfigArtifacts, error) {
	params, err := DeriveTrainingParams(classes.Len())
	if err != nil {
		return nil, err
	}

	if err := fsx.WriteFileAtomic(w.paths.Names, []byte(classes.Text()+"\n")); err != nil {
		return nil, entity.WrapStage(entity.StageConfigure, fmt.Errorf("write names file: %w", err))
	}
	artifacts := &entity.ConfigArtifacts{NamesPath: w.paths.Names, Params: params}
	w.logger.Info("names file written", zap.String("path", w.paths.Names), zap.Int("classes", params.Classes))

	tmpl, err := os.ReadFile(w.paths.Template)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("config template not found, only the names file was produced",
			zap.String("template", w.paths.Template))
		return artifacts, nil
	}
	if err != nil {
		return nil, entity.WrapStage(entity.StageConfigure, fmt.Errorf("read template: %w", err))
	}

	if err := fsx.WriteFileAtomic(w.paths.Output, []byte(RenderTemplate(string(tmpl), params))); err != nil {
		return nil, entity.WrapStage(entity.StageConfigure, fmt.Errorf("write config: %w", err))
	}
	artifacts.ConfigPath = w.paths.Output

	w.logger.Info("model config written",
		zap.String("path", w.paths.Output),
		zap.Int("classes", params.Classes),
		zap.Int("filters", params.Filters),
		zap.Int("max_batches", params.MaxBatches),
		zap.Int("step_1", params.Step1),
		zap.Int("step_2", params.Step2),
	)
	return artifacts, nil
}

// RenderTemplate substitutes the training placeholders in a config template.
func RenderTemplate(tmpl string, p entity.TrainingParams) string {
	return strings.NewReplacer(
		"_CLASS_NUMBER_", strconv.Itoa(p.Classes),
		"_NUMBER_OF_FILTERS_", strconv.Itoa(p.Filters),
		"_MAX_BATCHES_", strconv.Itoa(p.MaxBatches),
		"_STEPS_", fmt.Sprintf("%d,%d", p.Step1, p.Step2),
		"_STEP_1_", strconv.Itoa(p.Step1),
		"_STEP_2_", strconv.Itoa(p.Step2),
	).Replace(tmpl)
}

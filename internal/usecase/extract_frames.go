package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.uber.org/zap"
)

const progressEvery = 10

type FrameExtractor struct {
	opener port.FrameOpener
	store  port.FrameStore
	logger *zap.Logger
}

func NewFrameExtractor(opener port.FrameOpener, store port.FrameStore, logger *zap.Logger) *FrameExtractor {
	return &FrameExtractor{opener: opener, store: store, logger: logger}
}

// Extract reads src from its first frame and saves every policy.Interval-th
// raw frame into outputDir, numbering saved frames densely from 0.
//
// Cancelling ctx is an interrupt, not a failure: the loop stops at the next
// frame boundary and the frames saved so far are returned with
// Interrupted set. A frame that is being written when the interrupt lands
// is finished and counted. If reading or saving fails mid-run, the result
// returned alongside the error still describes the frames already on disk.
func (e *FrameExtractor) Extract(
	ctx context.Context,
	src entity.VideoSource,
	policy entity.ExtractionPolicy,
	outputDir string,
) (*entity.ExtractionResult, error) {
	if err := src.Validate(); err != nil {
		return nil, &entity.InvalidSourceError{Reference: src.String(), Reason: err.Error()}
	}
	if err := policy.Validate(); err != nil {
		return nil, entity.WrapStage(entity.StageExtract, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, entity.WrapStage(entity.StageExtract, fmt.Errorf("create output dir: %w", err))
	}

	log := e.logger.With(zap.Stringer("source", src), zap.String("output_dir", outputDir))

	limit := policy.CapFor(src)
	switch {
	case !src.Bounded() && limit == 0:
		log.Warn("no frame limit set for live source, extraction runs until interrupted")
	case src.Bounded() && limit == 0 && policy.MaxFrames > 0:
		log.Info("max frames is advisory for file sources, reading to end of stream",
			zap.Int("max_frames", policy.MaxFrames))
	}

	reader, err := e.opener.Open(ctx, src)
	if err != nil {
		log.Error("could not open source", zap.Error(err))
		return nil, &entity.SourceUnavailableError{Source: src, Err: err}
	}
	defer reader.Close()

	log.Info("extracting frames",
		zap.Int("interval", policy.Interval),
		zap.Int("max_frames", limit),
	)

	res := &entity.ExtractionResult{Source: src, OutputDir: outputDir}
	raw := 0
	for {
		if ctx.Err() != nil {
			res.Interrupted = true
			res.StopReason = entity.StopInterrupted
			break
		}

		img, err := reader.Next(ctx)
		if ctx.Err() != nil {
			res.Interrupted = true
			res.StopReason = entity.StopInterrupted
			break
		}
		if errors.Is(err, io.EOF) {
			if src.Bounded() {
				res.StopReason = entity.StopEndOfStream
			} else {
				res.StopReason = entity.StopSourceEnded
				log.Warn("live source ended", zap.Int("raw_frames", raw))
			}
			break
		}
		if err != nil {
			res.RawFrames = raw
			return res, entity.WrapStage(entity.StageExtract, fmt.Errorf("read frame %d: %w", raw, err))
		}

		if raw%policy.Interval == 0 {
			path, err := e.store.Save(outputDir, res.FrameCount, img)
			if err != nil {
				res.RawFrames = raw
				return res, entity.WrapStage(entity.StageExtract, err)
			}
			res.Frames = append(res.Frames, entity.SavedFrame{
				SequenceIndex: res.FrameCount,
				RawIndex:      raw,
				Path:          path,
			})
			res.FrameCount++
			metrics.FramesSavedTotal.Inc()

			if res.FrameCount%progressEvery == 0 {
				log.Info("extraction progress", zap.Int("saved", res.FrameCount), zap.Int("raw_frames", raw+1))
			}
			if limit > 0 && res.FrameCount >= limit {
				raw++
				res.StopReason = entity.StopMaxFrames
				break
			}
		}
		raw++
	}
	res.RawFrames = raw

	if res.Interrupted {
		log.Warn("extraction interrupted", zap.Int("saved", res.FrameCount), zap.Int("raw_frames", raw))
	} else {
		log.Info("extraction complete",
			zap.Int("saved", res.FrameCount),
			zap.Int("raw_frames", raw),
			zap.String("stop_reason", string(res.StopReason)),
		)
	}
	return res, nil
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessJobUseCase runs dataset jobs delivered by the queue. It is the
// orchestrator: components never retry, this decides whether a failure is
// requeued (transient camera/stream outages) or dead-lettered.
type ProcessJobUseCase struct {
	repo       port.RunRepository
	storage    port.DatasetStorage
	resolver   *SourceResolver
	extractor  *FrameExtractor
	reconciler *LabelReconciler
	archiver   port.Archiver
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        ProcessJobConfig
}

type ProcessJobConfig struct {
	TempDir        string
	ImagesDir      string
	TemplatePath   string
	NamesFile      string
	ConfigFile     string
	Interval       int
	CapFileSources bool
	ValidateIDs    bool
	MaxRetries     int
}

func NewProcessJobUseCase(
	repo port.RunRepository,
	storage port.DatasetStorage,
	resolver *SourceResolver,
	extractor *FrameExtractor,
	reconciler *LabelReconciler,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessJobConfig,
) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:       repo,
		storage:    storage,
		resolver:   resolver,
		extractor:  extractor,
		reconciler: reconciler,
		archiver:   archiver,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

func (uc *ProcessJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	var msg entity.DatasetJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "", "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.Kind != entity.RunKindExtract && msg.Kind != entity.RunKindPackage {
		uc.logger.Error("unknown job kind", zap.String("kind", string(msg.Kind)))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "", "unknown_kind: "+string(msg.Kind))
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.kind", string(msg.Kind)),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("kind", string(msg.Kind)))

	run, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		run = entity.NewRun(msg.Kind, reference(msg), uc.cfg.MaxRetries)
		run.ID = msg.JobID
		if err := uc.repo.Create(ctx, run); err != nil {
			log.Error("failed to create run record", zap.Error(err))
			return fmt.Errorf("create run: %w", err)
		}
	}

	if !run.CanRetry() {
		log.Warn("run exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, run, msg, rawMsg, errors.New("max retries exceeded"))
	}

	run.MarkProcessing()
	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to update run to PROCESSING", zap.Error(err))
		return fmt.Errorf("update run: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	workDir := filepath.Join(uc.cfg.TempDir, run.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	switch msg.Kind {
	case entity.RunKindExtract:
		err = uc.runExtract(ctx, run, msg, workDir, log)
	case entity.RunKindPackage:
		err = uc.runPackage(ctx, run, msg, workDir, log)
	}
	if err != nil {
		log.Error("run failed", zap.Error(err))
		if entity.IsRetryable(err) {
			return uc.handleRetryableFailure(ctx, run, msg, rawMsg, err, log)
		}
		return uc.handlePermanentFailure(ctx, run, msg, rawMsg, err)
	}

	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to update run to "+string(run.Status), zap.Error(err))
		return fmt.Errorf("update run finished: %w", err)
	}
	uc.publishStatus(ctx, run, log)
	metrics.RunsProcessedTotal.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	return nil
}

func (uc *ProcessJobUseCase) runExtract(
	ctx context.Context,
	run *entity.Run,
	msg entity.DatasetJobMessage,
	workDir string,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	rel, outDir, err := uc.jobDir(msg.Directory, run.ID.String(), entity.StageExtract)
	if err != nil {
		return err
	}
	run.Directory = rel

	ref := msg.Source
	if msg.VideoKey != "" {
		dlStart := time.Now()
		ctxDl, spanDl := tracer.Start(ctx, "download_video")
		ref = filepath.Join(workDir, "input"+path.Ext(msg.VideoKey))
		err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, ref)
		spanDl.End()
		if err != nil {
			return entity.WrapStage(entity.StageResolve, fmt.Errorf("download video: %w", err))
		}
		metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())
	}

	src, err := uc.resolver.Resolve(ref)
	if err != nil {
		return err
	}

	interval := msg.Interval
	if interval == 0 {
		interval = uc.cfg.Interval
	}
	policy := entity.ExtractionPolicy{
		Interval:       interval,
		MaxFrames:      msg.MaxFrames,
		CapFileSources: uc.cfg.CapFileSources,
	}
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "extract_frames", trace.WithAttributes(
		attribute.String("source.kind", src.Kind.String()),
		attribute.Int("policy.interval", policy.Interval),
	))
	res, err := uc.extractor.Extract(ctxEx, src, policy, outDir)
	spanEx.End()
	if err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	run.MarkExtracted(res)
	log.Info("extract run finished",
		zap.Int("frame_count", res.FrameCount),
		zap.String("stop_reason", string(res.StopReason)),
		zap.String("output_dir", outDir),
	)
	return nil
}

func (uc *ProcessJobUseCase) runPackage(
	ctx context.Context,
	run *entity.Run,
	msg entity.DatasetJobMessage,
	workDir string,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	rel, dir, err := uc.jobDir(msg.Directory, "", entity.StagePackage)
	if err != nil {
		return err
	}
	run.Directory = rel

	classes, err := uc.jobClasses(msg, dir, workDir, log)
	if err != nil {
		return err
	}

	cfgStart := time.Now()
	var artifacts *entity.ConfigArtifacts
	if classes.Len() > 0 {
		_, spanCfg := tracer.Start(ctx, "derive_config")
		writer := NewConfigWriter(ConfigPaths{
			Names:    filepath.Join(workDir, uc.cfg.NamesFile),
			Template: uc.cfg.TemplatePath,
			Output:   filepath.Join(workDir, uc.cfg.ConfigFile),
		}, log)
		artifacts, err = writer.Write(classes)
		spanCfg.End()
		if err != nil {
			return err
		}
		metrics.StageDuration.WithLabelValues("configure").Observe(time.Since(cfgStart).Seconds())
	}

	pkgCfg := PackagerConfig{
		StagingDir:  filepath.Join(workDir, "obj"),
		ArchivePath: filepath.Join(workDir, "obj.zip"),
	}
	if uc.cfg.ValidateIDs {
		pkgCfg.ClassCount = classes.Len()
	}
	packager := NewDatasetPackager(uc.reconciler, uc.archiver, log, pkgCfg)

	pkgStart := time.Now()
	ctxPkg, spanPkg := tracer.Start(ctx, "package_dataset")
	result, err := packager.Package(ctxPkg, dir)
	spanPkg.End()
	if err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("package").Observe(time.Since(pkgStart).Seconds())

	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_archive")
	defer spanUp.End()

	prefix := run.ID.String()
	archiveKey := prefix + "/obj.zip"
	if err := uc.upload(ctxUp, archiveKey, result.ArchivePath); err != nil {
		return entity.WrapStage(entity.StagePackage, err)
	}
	if artifacts != nil {
		if err := uc.upload(ctxUp, prefix+"/"+filepath.Base(artifacts.NamesPath), artifacts.NamesPath); err != nil {
			return entity.WrapStage(entity.StageConfigure, err)
		}
		if artifacts.FullConfig() {
			if err := uc.upload(ctxUp, prefix+"/"+filepath.Base(artifacts.ConfigPath), artifacts.ConfigPath); err != nil {
				return entity.WrapStage(entity.StageConfigure, err)
			}
		}
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	run.MarkPackaged(archiveKey, len(result.Pairs))
	log.Info("package run finished",
		zap.Int("pairs", len(result.Pairs)),
		zap.Strings("unmatched_images", result.Report.UnmatchedImages),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

// jobDir resolves a job's directory under ImagesDir and returns it both
// relative, for status messages, and joined. An empty request uses fallback.
func (uc *ProcessJobUseCase) jobDir(requested, fallback string, stage entity.Stage) (string, string, error) {
	if requested == "" {
		return fallback, filepath.Join(uc.cfg.ImagesDir, fallback), nil
	}
	if !filepath.IsLocal(requested) {
		return "", "", &entity.InvalidDirectoryError{Op: stage, Directory: requested}
	}
	return requested, filepath.Join(uc.cfg.ImagesDir, requested), nil
}

// jobClasses returns the class list a package job is configured and
// validated with: the job's own list, else the one exported next to the
// labels. Only a missing class file means "no classes"; a list that exists
// but is unusable fails the job.
func (uc *ProcessJobUseCase) jobClasses(msg entity.DatasetJobMessage, dir, workDir string, log *zap.Logger) (entity.ClassList, error) {
	registry := NewClassRegistry(filepath.Join(workDir, ClassesFileName), log)
	if len(msg.Classes) > 0 {
		if err := registry.Set(msg.Classes); err != nil {
			return nil, err
		}
		return registry.Classes(), nil
	}

	list, from, err := registry.Discover(dir)
	var notFound *entity.ClassFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		log.Warn("no class list found, packaging without config artifacts", zap.String("dir", dir))
		return nil, nil
	case err != nil:
		return nil, err
	}
	log.Info("using class list exported with the labels", zap.String("path", from))
	return list, nil
}

func (uc *ProcessJobUseCase) upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	if err := uc.storage.UploadArchive(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (uc *ProcessJobUseCase) handleRetryableFailure(
	ctx context.Context,
	run *entity.Run,
	msg entity.DatasetJobMessage,
	rawMsg []byte,
	cause error,
	log *zap.Logger,
) error {
	run.MarkFailed(cause)
	_ = uc.repo.Update(ctx, run)

	if !run.CanRetry() {
		return uc.handlePermanentFailure(ctx, run, msg, rawMsg, cause)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(run.Attempt)).Inc()
	uc.publishStatus(ctx, run, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %w", run.Attempt, run.MaxAttempts, cause)
}

func (uc *ProcessJobUseCase) handlePermanentFailure(
	ctx context.Context,
	run *entity.Run,
	msg entity.DatasetJobMessage,
	rawMsg []byte,
	cause error,
) error {
	run.MarkFailed(cause)
	_ = uc.repo.Update(ctx, run)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, run.FailedStage, cause.Error())

	uc.publishStatus(ctx, run, uc.logger)

	metrics.RunsProcessedTotal.WithLabelValues(string(run.Kind), "dlq").Inc()

	if msg.NotifyEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.NotifyEmail, run.ID.String(), run.Reference, run.FailedStage, cause.Error())
	}

	return nil
}

func (uc *ProcessJobUseCase) publishStatus(ctx context.Context, run *entity.Run, log *zap.Logger) {
	statusMsg := entity.DatasetStatusMessage{
		JobID:        run.ID,
		Kind:         run.Kind,
		Status:       run.Status,
		Reference:    run.Reference,
		Directory:    run.Directory,
		FrameCount:   run.FrameCount,
		PairCount:    run.PairCount,
		ArchiveKey:   run.ArchiveKey,
		FailedStage:  run.FailedStage,
		ErrorMessage: run.ErrorMessage,
		Attempt:      run.Attempt,
		MaxAttempts:  run.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func reference(msg entity.DatasetJobMessage) string {
	switch {
	case msg.Kind == entity.RunKindPackage:
		return msg.Directory
	case msg.VideoKey != "":
		return msg.VideoKey
	default:
		return msg.Source
	}
}

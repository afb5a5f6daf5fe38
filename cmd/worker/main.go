package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/infra/archive"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/config"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/email"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/framestore"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-dataset-service/internal/infra/minio"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-dataset-service/internal/usecase"
	"github.com/fiapx/fiapx-dataset-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-dataset-service", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional.
	tp, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.JaegerEndpoint,
		ServiceName:    "fiapx-dataset-service",
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	repo := postgres.NewRunRepository(pool)
	opener := ffmpeg.NewOpener(ffmpeg.Options{
		FFmpegBin:     cfg.FFmpegBin,
		FFprobeBin:    cfg.FFprobeBin,
		DeviceInput:   cfg.FFmpegDeviceInput,
		DevicePath:    cfg.FFmpegDevicePath,
		RTSPTransport: cfg.FFmpegRTSPTrans,
	}, log)
	store, err := framestore.NewStore(cfg.FramePrefix, cfg.FrameFormat, cfg.JPEGQuality)
	fatalOnErr(err, "create frame store")
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewProcessJobUseCase(
		repo, storage,
		usecase.NewSourceResolver(log),
		usecase.NewFrameExtractor(opener, store, log),
		usecase.NewLabelReconciler(log),
		archive.NewZipCreator(),
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessJobConfig{
			TempDir:        cfg.TempDir,
			ImagesDir:      cfg.ImagesDir,
			TemplatePath:   cfg.TemplatePath(),
			NamesFile:      cfg.NamesFile,
			ConfigFile:     cfg.ModelConfig,
			Interval:       cfg.FrameInterval,
			CapFileSources: cfg.CapFileSources,
			ValidateIDs:    cfg.ValidateIDs,
			MaxRetries:     cfg.MaxRetries,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log, map[string]metrics.ReadinessCheck{
		"postgres": pool.Ping,
		"minio":    storage.Ping,
	})

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQJobQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-dataset-service started, consuming jobs", zap.String("queue", cfg.RabbitMQJobQueue))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-dataset-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

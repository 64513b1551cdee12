// Package main wires together the title service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/patronemptor/titlesvc/internal/api"
	"github.com/patronemptor/titlesvc/internal/clock/system"
	"github.com/patronemptor/titlesvc/internal/config"
	"github.com/patronemptor/titlesvc/internal/dispatcher"
	collyfetcher "github.com/patronemptor/titlesvc/internal/fetcher/colly"
	"github.com/patronemptor/titlesvc/internal/id/uuid"
	"github.com/patronemptor/titlesvc/internal/logging"
	"github.com/patronemptor/titlesvc/internal/metrics"
	queueMemory "github.com/patronemptor/titlesvc/internal/queue/memory"
	pubsubqueue "github.com/patronemptor/titlesvc/internal/queue/pubsub"
	gcsstorage "github.com/patronemptor/titlesvc/internal/storage/gcs"
	memoryStorage "github.com/patronemptor/titlesvc/internal/storage/memory"
	pgstorage "github.com/patronemptor/titlesvc/internal/storage/postgres"
	"github.com/patronemptor/titlesvc/internal/titles"
	"github.com/patronemptor/titlesvc/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, stop); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stop context.CancelFunc) error {
	idGen := uuid.New()
	clock := system.New()

	records, closeRecords, err := setupRecords(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecords()

	blobs, closeBlobs, err := setupBlobs(ctx, cfg, logger, idGen)
	if err != nil {
		return err
	}
	defer closeBlobs()

	// Provisioning runs once at startup; the services assume the schema and
	// bucket exist afterwards.
	if err := records.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("record store provisioning failed: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("blob store provisioning failed: %w", err)
	}

	queue, closeQueue, err := setupQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})

	var workers []*worker.Worker
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			records,
			blobs,
			fetcher,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(records, dispatch, idGen, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Worker.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func setupRecords(ctx context.Context, cfg config.Config, logger *zap.Logger) (titles.RecordStore, func(), error) {
	switch cfg.DB.Backend {
	case "postgres":
		logger.Info("using postgres record store", zap.String("table", cfg.DB.Table))
		store, err := pgstorage.NewRecordStore(ctx, pgstorage.RecordStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("record store init failed: %w", err)
		}
		return store, store.Close, nil
	case "memory":
		logger.Info("using in-memory record store")
		return memoryStorage.NewRecordStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db backend %q", cfg.DB.Backend)
	}
}

func setupBlobs(ctx context.Context, cfg config.Config, logger *zap.Logger, idGen titles.IDGenerator) (titles.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		logger.Info("using GCS blob store", zap.String("bucket", cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(client, idGen, gcsstorage.Config{
			Bucket:    cfg.Storage.Bucket,
			ProjectID: cfg.Storage.ProjectID,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, func() {
			if err := client.Close(); err != nil {
				logger.Warn("gcs client close failed", zap.Error(err))
			}
		}, nil
	case "memory":
		logger.Info("using in-memory blob store")
		return memoryStorage.NewBlobStore(idGen), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func setupQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (titles.Queue, func(), error) {
	if !cfg.PubSub.Enabled {
		logger.Info("using in-memory dispatch queue")
		q := queueMemory.NewQueue(cfg.Worker.QueueDepth)
		return q, q.Close, nil
	}

	logger.Info("using pubsub dispatch queue",
		zap.String("topic", cfg.PubSub.TopicName),
		zap.String("subscription", cfg.PubSub.Subscription),
	)
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	q, err := pubsubqueue.New(ctx, client, pubsubqueue.Config{
		TopicName:    cfg.PubSub.TopicName,
		Subscription: cfg.PubSub.Subscription,
		Buffer:       cfg.Worker.QueueDepth,
	}, logger.Named("pubsub"))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pubsub queue init failed: %w", err)
	}
	go func() {
		if err := q.Run(ctx); err != nil {
			logger.Error("pubsub receive stopped", zap.Error(err))
		}
	}()
	return q, func() {
		q.Close()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}, nil
}

// Package main wires together the ingestion and query service binary.
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

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/api"
	gcsarchive "github.com/quarrylabs/quarry/internal/archive/gcs"
	localarchive "github.com/quarrylabs/quarry/internal/archive/local"
	nooparchive "github.com/quarrylabs/quarry/internal/archive/noop"
	"github.com/quarrylabs/quarry/internal/clock/system"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/crawl"
	"github.com/quarrylabs/quarry/internal/embed"
	noopevents "github.com/quarrylabs/quarry/internal/events/noop"
	pubsubevents "github.com/quarrylabs/quarry/internal/events/pubsub"
	"github.com/quarrylabs/quarry/internal/gen"
	"github.com/quarrylabs/quarry/internal/hash/sha256"
	"github.com/quarrylabs/quarry/internal/id/uuid"
	"github.com/quarrylabs/quarry/internal/index"
	lockmemory "github.com/quarrylabs/quarry/internal/lock/memory"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/pipeline"
	queuememory "github.com/quarrylabs/quarry/internal/queue/memory"
	"github.com/quarrylabs/quarry/internal/rag"
	"github.com/quarrylabs/quarry/internal/segment"
	storememory "github.com/quarrylabs/quarry/internal/store/memory"
	storepostgres "github.com/quarrylabs/quarry/internal/store/postgres"
	"github.com/quarrylabs/quarry/internal/watchdog"
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
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	hasher := sha256.New()

	jobStore, err := newJobStore(ctx, cfg, clock)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}

	embedder, err := embed.NewFromConfig(cfg.Embedding, logger.Named("embed"))
	if err != nil {
		logger.Fatal("embedder init failed", zap.Error(err))
	}
	generator, err := gen.NewFromConfig(cfg.Generation, logger.Named("gen"))
	if err != nil {
		logger.Fatal("generator init failed", zap.Error(err))
	}
	vectorIndex, err := index.New(cfg.Index.Dir, cfg.Index.BatchSize, logger.Named("index"))
	if err != nil {
		logger.Fatal("vector index init failed", zap.Error(err))
	}

	fetcher := crawl.NewFetcher(crawl.FetcherConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	crawlOpts := []crawl.Option{crawl.WithArchive(archive)}
	var headless *crawl.HeadlessFetcher
	if cfg.Headless.Enabled {
		headless = crawl.NewHeadless(crawl.HeadlessConfig{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		detector := crawl.NewDetector(cfg.Headless.MinBodyBytes)
		crawlOpts = append(crawlOpts, crawl.WithHeadless(headless, detector))
	}
	crawler := crawl.New(crawl.Config{
		MaxRetries:      cfg.Crawler.MaxRetries,
		PolitenessDelay: cfg.PolitenessDelay(),
	}, fetcher, clock, logger.Named("crawl"), crawlOpts...)

	segmenter := segment.New(cfg.Segmenter.ChunkSize, cfg.Segmenter.ChunkOverlap, hasher, logger.Named("segment"))
	locker := lockmemory.New(clock)
	queue := queuememory.New(cfg.Pipeline.QueueDepth)

	workerCfg := pipeline.Config{
		SoftTimeLimit: cfg.SoftTimeLimit(),
		HardTimeLimit: cfg.HardTimeLimit(),
		LockTTL:       cfg.LockTTL(),
		Topic:         cfg.Events.Topic,
	}
	var workers []*pipeline.Worker
	for i := 0; i < cfg.Pipeline.Concurrency; i++ {
		workers = append(workers, pipeline.New(
			queue,
			jobStore,
			crawler,
			segmenter,
			embedder,
			vectorIndex,
			locker,
			publisher,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := pipeline.NewDispatcher(queue, workers)

	dog := watchdog.New(jobStore, clock, cfg.WatchdogThreshold(), logger.Named("watchdog"))
	if err := dog.Start(cfg.WatchdogInterval()); err != nil {
		logger.Fatal("watchdog start failed", zap.Error(err))
	}
	defer dog.Stop()

	apiServer := api.NewServer(
		jobStore,
		dispatch,
		embedder,
		vectorIndex,
		generator,
		idGen,
		clock,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
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
	queue.Close()
	if headless != nil {
		headless.Close()
	}
	logger.Info("shutdown complete")
}

func newJobStore(ctx context.Context, cfg config.Config, clock rag.Clock) (rag.JobStore, error) {
	switch cfg.Store.Provider {
	case "postgres":
		return storepostgres.New(ctx, cfg.Store.DSN, clock)
	default:
		return storememory.New(clock), nil
	}
}

func newArchive(ctx context.Context, cfg config.Config) (rag.Archive, error) {
	switch cfg.Archive.Provider {
	case "local":
		return localarchive.New(cfg.Archive.BaseDir)
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return gcsarchive.New(client, cfg.Archive.Bucket, cfg.Archive.Prefix)
	default:
		return nooparchive.New(), nil
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (rag.Publisher, error) {
	switch cfg.Events.Provider {
	case "pubsub":
		return pubsubevents.New(ctx, cfg.Events.ProjectID, cfg.Events.Topic)
	default:
		return noopevents.New(), nil
	}
}

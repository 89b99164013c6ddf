// PDF host
//
// Entry point: wires all components together and manages graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtiwari1/pdfhost/internal/blobstore"
	"github.com/mtiwari1/pdfhost/internal/cache"
	"github.com/mtiwari1/pdfhost/internal/config"
	"github.com/mtiwari1/pdfhost/internal/pdf"
	"github.com/mtiwari1/pdfhost/internal/repository"
	"github.com/mtiwari1/pdfhost/internal/restapi"
	"github.com/mtiwari1/pdfhost/internal/snapshot"
	"github.com/mtiwari1/pdfhost/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(2)
	}
	level, _ := cfg.LogLevel()

	// ── Structured logger ──
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting pdf host",
		slog.String("blob_driver", cfg.Blob.Driver),
		slog.String("metadata_driver", cfg.Metadata.Driver),
	)

	// ── Blob store ──
	blobs, uploadDir, err := newBlobStore(cfg)
	if err != nil {
		logger.Error("init blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ── Metadata store: connects in the background, requests fail fast until ready ──
	handle := repository.NewHandle()
	connected := handle.Connect(context.Background(), func(ctx context.Context) (repository.Repository, error) {
		return dialMetadata(ctx, cfg)
	}, logger)

	// ── Record cache ──
	var recordCache cache.Cache = cache.NoOp{}
	if cfg.Cache.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		redisCache, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
		} else {
			recordCache = redisCache
			defer redisCache.Close()
			logger.Info("redis cache connected", slog.String("addr", cfg.Cache.RedisAddr))
		}
	}

	// ── Snapshot + flush pool ──
	snap := snapshot.New(cfg.Snapshot.Path, logger)
	if err := snap.Load(); err != nil {
		logger.Error("load snapshot", slog.String("error", err.Error()))
	}

	pool := worker.NewPool(cfg.Snapshot.Workers, snap, logger)
	pool.Start()
	logger.Info("flush pool started", slog.Int("workers", cfg.Snapshot.Workers))

	resultsDone := make(chan struct{})
	go func() {
		defer close(resultsDone)
		handleResults(pool.Results(), logger)
	}()

	// ── REST API ──
	svc := pdf.NewService(handle, blobs, logger,
		pdf.WithCache(recordCache),
		pdf.WithIndex(snap, pool),
	)
	handler := restapi.NewHandler(svc, uploadDir, cfg.Server.MaxUploadBytes, logger)

	httpSrv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve", slog.String("error", err.Error()))
		}
	}()

	// ── Graceful shutdown (SIGINT / SIGTERM) ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// 1. Stop accepting new HTTP requests.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped")

	// 2. Drain pending flushes, then write a final snapshot.
	pool.Shutdown()
	<-resultsDone
	if err := snap.Save(); err != nil {
		logger.Error("final snapshot save", slog.String("error", err.Error()))
	}

	// 3. Close the metadata store once the connect attempt has settled.
	select {
	case <-connected:
	case <-shutCtx.Done():
	}
	if err := handle.Close(shutCtx); err != nil {
		logger.Error("close metadata store", slog.String("error", err.Error()))
	}

	logger.Info("pdf host shutdown complete")
}

func newBlobStore(cfg *config.Config) (blobstore.Store, string, error) {
	if cfg.Blob.Driver == config.BlobS3 {
		s, err := blobstore.NewS3(cfg.Blob.S3.Region, cfg.Blob.S3.Bucket, cfg.Blob.S3.Prefix)
		return s, "", err
	}
	d, err := blobstore.NewDisk(cfg.Blob.Dir)
	if err != nil {
		return nil, "", err
	}
	return d, d.Dir(), nil
}

func dialMetadata(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	if cfg.Metadata.Driver == config.MetadataSQLite {
		return repository.NewSQLiteRepo(cfg.Metadata.SQLitePath)
	}
	return repository.NewMongoRepo(ctx, cfg.Metadata.MongoURI, cfg.Metadata.Database, cfg.Metadata.Collection)
}

// handleResults logs the outcome of each background snapshot flush.
func handleResults(results <-chan worker.Result, logger *slog.Logger) {
	for res := range results {
		if res.Err != nil {
			logger.Error("snapshot flush failed",
				slog.String("record_id", res.RecordID),
				slog.String("reason", res.Reason),
				slog.String("error", res.Err.Error()),
			)
			continue
		}
		logger.Debug("snapshot flushed",
			slog.String("record_id", res.RecordID),
			slog.String("reason", res.Reason),
			slog.Duration("latency", res.Latency),
		)
	}
}

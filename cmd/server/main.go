package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/foodingest/internal/blob"
	"github.com/JonMunkholm/foodingest/internal/config"
	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/logging"
	"github.com/JonMunkholm/foodingest/internal/observer"
	"github.com/JonMunkholm/foodingest/internal/store"
	"github.com/JonMunkholm/foodingest/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"table", cfg.Store.Table,
		"blob", cfg.Blob.Backend,
		"batch_size", cfg.Ingest.BatchSize,
		"max_attempts", cfg.Ingest.MaxAttempts,
		"timeout", cfg.Ingest.Timeout,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	// Background jobs (change watcher) stop on shutdown.
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	var awsCfg aws.Config
	if cfg.Store.Backend == config.BackendDynamo || cfg.Blob.Backend == config.BlobS3 {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			slog.Error("failed to load AWS configuration", "error", err)
			os.Exit(1)
		}
	}

	obs := observer.New(nil)

	st, err := openStore(ctx, jobCtx, cfg, awsCfg, obs)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer st.close()

	blobs := openBlobs(cfg, awsCfg)

	coord := ingest.NewCoordinator(st.writer, cfg.Store.Table, ingest.OptionsFromConfig(cfg.Ingest), st.deadLetter)
	pipeline := ingest.NewPipeline(blobs, coord, cfg.Ingest.Timeout)
	limiter := ingest.NewLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	service := ingest.NewService(pipeline, limiter, cfg.Ingest.ResultRetention)

	server := web.NewServer(service, obs, cfg.Server)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.Status(); status.Active > 0 {
			slog.Info("waiting for invocations to complete", "active", status.Active)
			if err := service.WaitForInvocations(shutdownCtx); err != nil {
				slog.Warn("invocations did not complete in time", "error", err)
			} else {
				slog.Info("all invocations completed")
			}
		}

		cancelJobs()
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openedStore is the configured writer, its dead-letter path and cleanup.
type openedStore struct {
	writer     ingest.BatchWriter
	deadLetter ingest.DeadLetter
	close      func()
}

func openStore(ctx, jobCtx context.Context, cfg *config.Config, awsCfg aws.Config, obs *observer.Observer) (*openedStore, error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return openPostgres(ctx, jobCtx, cfg, obs)

	case config.BackendDynamo:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		slog.Info("using dynamodb store", "region", cfg.AWS.Region, "table", cfg.Store.Table)
		return &openedStore{writer: store.NewDynamo(client), deadLetter: ingest.LogDeadLetter{}, close: noop}, nil

	case config.BackendMemory:
		var onCommit store.ChangeHandler
		if cfg.Observer.Enabled {
			onCommit = obs.Handle
		}
		slog.Warn("using in-memory store, data is lost on exit")
		return &openedStore{writer: store.NewMemory(onCommit), deadLetter: ingest.LogDeadLetter{}, close: noop}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func openPostgres(ctx, jobCtx context.Context, cfg *config.Config, obs *observer.Observer) (*openedStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database)

	pg := store.NewPostgres(pool, cfg.Database.NotifyChannel)
	if cfg.Database.EnsureSchema {
		if err := pg.EnsureSchema(ctx, cfg.Store.Table); err != nil {
			pool.Close()
			return nil, err
		}
	}

	var dlq ingest.DeadLetter = ingest.LogDeadLetter{}
	if cfg.Database.DeadLetterTable != "" {
		pdl := store.NewPostgresDeadLetter(pool, cfg.Database.DeadLetterTable, cfg.Store.Table)
		if cfg.Database.EnsureSchema {
			if err := pdl.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		dlq = pdl
	}

	if cfg.Observer.Enabled {
		go func() {
			if err := pg.Watch(jobCtx, obs.Handle); err != nil {
				slog.Error("change watcher stopped", "error", err)
			}
		}()
	}

	return &openedStore{writer: pg, deadLetter: dlq, close: pool.Close}, nil
}

func openBlobs(cfg *config.Config, awsCfg aws.Config) ingest.BlobReader {
	if cfg.Blob.Backend == config.BlobLocal {
		slog.Info("reading objects from local directory", "root", cfg.Blob.LocalRoot)
		return blob.NewDir(cfg.Blob.LocalRoot, cfg.Blob.MaxObjectSize)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			o.UsePathStyle = true
		}
	})
	return blob.NewS3(client, cfg.Blob.MaxObjectSize)
}

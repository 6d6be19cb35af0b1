package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/svtfetch/backend/internal/api"
	"github.com/svtfetch/backend/internal/cache"
	"github.com/svtfetch/backend/internal/config"
	"github.com/svtfetch/backend/internal/db"
	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/health"
	"github.com/svtfetch/backend/internal/logger"
	"github.com/svtfetch/backend/internal/metrics"
	"github.com/svtfetch/backend/internal/middleware"
	"github.com/svtfetch/backend/internal/profile"
	"github.com/svtfetch/backend/internal/storage"
	"github.com/svtfetch/backend/internal/svtplay"
	"github.com/svtfetch/backend/internal/validators"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error(context.Background(), "server exited", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetDefault(logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), ""))
	log := logger.Default().WithComponent("server")
	ctx := context.Background()

	tool, err := svtplay.New(&svtplay.Config{BinaryPath: cfg.SvtplayDLPath})
	if err != nil {
		return fmt.Errorf("failed to set up svtplay-dl at %q: %w", cfg.SvtplayDLPath, err)
	}

	m := metrics.New()

	var (
		mirror      *download.Mirror
		redisClient *redis.Client
		probeCache  *cache.Cache
	)
	if cfg.RedisURL != "" {
		mirror, err = download.NewMirror(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient = mirror.Client()
		probeCache = cache.New(redisClient, cfg.ProbeCacheTTL)
		log.Info(ctx, "redis enabled for job mirror and probe cache")
	}

	var (
		archive      *storage.Archive
		onComplete   download.CompletionHook
		storageCheck func(context.Context) error
	)
	if cfg.MinioEndpoint != "" {
		client, err := storage.New(&storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to prepare bucket %q: %w", cfg.MinioBucket, err)
		}
		archive = storage.NewArchive(client)
		onComplete = archive.Hook()
		storageCheck = client.Ping
		log.Info(ctx, "archiving completed jobs", map[string]interface{}{"bucket": client.Bucket()})
	}

	var (
		profileStore profile.Store
		sqlDB        *sql.DB
	)
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		profileStore = profile.NewPostgresStore(database)
		sqlDB = database.DB
	} else {
		fileStore, err := profile.OpenFileStore(cfg.ProfilesFile)
		if err != nil {
			return err
		}
		profileStore = fileStore
	}

	downloads := download.NewService(&download.ServiceConfig{
		WorkerCount: cfg.WorkerCount,
		JobTimeout:  cfg.JobTimeout,
		Defaults: download.Options{
			DownloadDir: cfg.DownloadDir,
			Quality:     cfg.DefaultQuality,
			Subtitle:    cfg.DefaultSubtitle,
		},
		Mirror:     mirror,
		Recorder:   m,
		OnComplete: onComplete,
	}, tool)
	if err := downloads.Start(ctx); err != nil {
		return err
	}

	m.SetJobCounts(func() map[string]int {
		counts := downloads.Store().CountByStatus()
		out := make(map[string]int, len(counts))
		for status, n := range counts {
			out[string(status)] = n
		}
		return out
	})

	checker := health.NewChecker(&health.CheckerConfig{
		DB:           sqlDB,
		Redis:        redisClient,
		StorageCheck: storageCheck,
		ToolPath:     tool.BinaryPath(),
		DownloadDir:  cfg.DownloadDir,
		RunnerCheck:  downloads.IsRunning,
		Version:      version,
	})

	router := api.NewRouter(&api.Config{
		Downloads:   downloads,
		Prober:      tool,
		ProbeCache:  probeCache,
		Profiles:    profile.NewManager(profileStore),
		Validators:  validators.DefaultRegistry(),
		Health:      health.NewHandler(checker),
		Metrics:     m,
		RateLimiter: middleware.NewRateLimiter(cfg.SubmitRateLimit, cfg.SubmitRateBurst),
		DownloadDir: cfg.DownloadDir,
		BrowseRoot:  cfg.BrowseRoot,
	})

	handler := middleware.Chain(router,
		apperrors.RequestIDMiddleware,
		logger.RecoveryMiddleware,
		logger.LoggingMiddleware,
		metrics.MetricsMiddleware(m),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Timing,
		middleware.Gzip,
		middleware.ETag,
	)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", map[string]interface{}{
			"addr":         cfg.ServerAddr,
			"version":      version,
			"download_dir": cfg.DownloadDir,
			"workers":      cfg.WorkerCount,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-sigCtx.Done():
		log.Info(ctx, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "http shutdown error", err)
	}
	if err := downloads.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "download service shutdown error", err)
	}
	if archive != nil {
		if err := archive.Wait(shutdownCtx); err != nil {
			log.Error(ctx, "archive uploads still running at shutdown", err)
		}
	}
	return nil
}

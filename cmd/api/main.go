package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/videotube/api/internal/auth"
	"github.com/videotube/api/internal/config"
	"github.com/videotube/api/internal/logger"
	"github.com/videotube/api/internal/media"
	"github.com/videotube/api/internal/metrics"
	"github.com/videotube/api/internal/profile"
	"github.com/videotube/api/internal/server"
	"github.com/videotube/api/internal/storage"
	"github.com/videotube/api/internal/users"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root := &cobra.Command{
		Use:           "videotube",
		Short:         "VideoTube API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve, &cobra.Command{
		Use:   "migrate",
		Short: "Create store indexes or schema and the media bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	})
	return root
}

func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// openStore connects the credential store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config) (users.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return users.NewPostgresStore(pool), pool.Close, nil
	case config.StoreMemory:
		return users.NewMemoryStore(), func() {}, nil
	default:
		client, err := storage.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return users.NewMongoStore(client.Database(cfg.Mongo.Database)), closeFn, nil
	}
}

func runMigrate(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		return err
	}
	if err := storage.EnsureMediaBucket(ctx, minioClient, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	log.Info("migration complete", zap.String("store", cfg.Store.Driver), zap.String("bucket", cfg.MinIO.Bucket))
	return nil
}

func runServe(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)
	metrics.InitMetrics()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		return err
	}
	if err := storage.EnsureMediaBucket(ctx, minioClient, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	uploader := media.NewUploader(minioClient, cfg.MinIO.Bucket, cfg.Media.PublicBaseURL)
	stager := media.NewStager(cfg.Media.TempDir, cfg.Media.MaxUploadBytes)

	authService := auth.NewService(store, auth.NewPasswordHasher(cfg.Auth), auth.NewTokenManager(cfg.Auth), uploader)
	profileService := profile.NewService(store, uploader)

	router := server.NewRouter(server.Dependencies{
		Config:         cfg,
		Logger:         log,
		Store:          store,
		ObjectStore:    minioClient,
		Stager:         stager,
		AuthService:    authService,
		ProfileService: profileService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("VideoTube API listening", zap.String("addr", cfg.Server.Address()), zap.String("store", cfg.Store.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

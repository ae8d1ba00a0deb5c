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

	"sampleapp/backend/internal/config"
	"sampleapp/backend/internal/credential"
	authdomain "sampleapp/backend/internal/domain/auth"
	picturedomain "sampleapp/backend/internal/domain/picture"
	"sampleapp/backend/internal/httpserver"
	"sampleapp/backend/internal/infrastructure/mail"
	"sampleapp/backend/internal/infrastructure/memory"
	"sampleapp/backend/internal/infrastructure/postgres"
	"sampleapp/backend/internal/infrastructure/ratelimit"
	"sampleapp/backend/internal/infrastructure/storage"
	"sampleapp/backend/internal/infrastructure/token"
	"sampleapp/backend/internal/logging"
	authusecase "sampleapp/backend/internal/usecase/auth"
	pictureusecase "sampleapp/backend/internal/usecase/picture"
	userusecase "sampleapp/backend/internal/usecase/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger logging.Logger) error {
	rootCtx := context.Background()

	users, pictures, closeStore, err := openRepositories(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	creds, err := credential.NewManager(
		credential.WithCostMode(credential.ParseCostMode(cfg.Credentials.CostMode)),
		credential.WithStrongCost(cfg.Credentials.BcryptCost),
	)
	if err != nil {
		return fmt.Errorf("credential manager: %w", err)
	}

	policy := authdomain.Policy{
		NameMaxLength:     cfg.Users.NameMaxLength,
		EmailMaxLength:    cfg.Users.EmailMaxLength,
		PasswordMinLength: cfg.Users.PasswordMinLength,
	}

	authOpts := []authusecase.Option{
		authusecase.WithPolicy(policy),
		authusecase.WithLogger(logger.With("component", "auth")),
		authusecase.WithMailer(newMailer(cfg, logger)),
	}
	if cfg.Login.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.Login.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		authOpts = append(authOpts, authusecase.WithLoginLimiter(
			ratelimit.NewRedisLimiter(client, cfg.Login.MaxAttempts, cfg.Login.Window),
		))
		logger.Info(rootCtx, "login throttling enabled", "max_attempts", cfg.Login.MaxAttempts, "window", cfg.Login.Window)
	}

	objects, files, err := newObjectStore(rootCtx, cfg)
	if err != nil {
		return err
	}

	tokenManager := token.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry, cfg.JWTIssuer)
	authService := authusecase.NewService(users, tokenManager, creds, authOpts...)
	userService := userusecase.NewService(users, creds, policy)
	pictureService := pictureusecase.NewService(pictures, objects, pictureusecase.Limits{
		MaxWidth:  cfg.Picture.MaxWidth,
		MaxHeight: cfg.Picture.MaxHeight,
		MaxBytes:  cfg.Picture.MaxBytes,
		MaxPixels: cfg.Picture.MaxPixels,
		URLExpiry: cfg.Picture.URLExpiry,
	}, logger.With("component", "picture"))

	server := httpserver.NewServer(cfg, logger.With("component", "http"), authService, userService, pictureService)
	if files != nil {
		server.Router().Handle("/uploads/", files)
		logger.Info(rootCtx, "serving pictures from disk", "dir", cfg.Picture.Dir)
	}
	logger.Info(rootCtx, "HTTP server listening", "addr", server.Addr(), "hash_cost_mode", creds.Mode().String())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	shutdownCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info(ctx, "graceful shutdown completed")
	return nil
}

func openRepositories(ctx context.Context, cfg config.Config, logger logging.Logger) (authdomain.UserRepository, picturedomain.Repository, func(), error) {
	if cfg.StorageDriver == "memory" {
		logger.Warn(ctx, "using in-memory storage; data is lost on restart")
		return memory.NewUserRepository(), memory.NewPictureRepository(), func() {}, nil
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return postgres.NewUserRepository(db.Pool), postgres.NewPictureRepository(db.Pool), db.Close, nil
}

func newMailer(cfg config.Config, logger logging.Logger) authusecase.ActivationMailer {
	mailLogger := logger.With("component", "mail")
	if cfg.SMTP.Addr == "" {
		return mail.NewLogMailer(mailLogger)
	}
	return mail.NewSMTPMailer(cfg.SMTP.Addr, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.BaseURL, mailLogger)
}

// newObjectStore picks S3 when a bucket is configured and the local disk
// otherwise. The returned handler is non-nil only for the disk store.
func newObjectStore(ctx context.Context, cfg config.Config) (pictureusecase.ObjectStore, http.Handler, error) {
	if cfg.S3.Bucket == "" {
		store, err := storage.NewFileStore(cfg.Picture.Dir, cfg.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("picture storage: %w", err)
		}
		return store, store.Handler(), nil
	}
	store, err := storage.NewS3Store(ctx, storage.Options{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("picture storage: %w", err)
	}
	return store, nil, nil
}

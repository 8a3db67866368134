package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/upay2home/auth-backend/docs"
	"github.com/upay2home/auth-backend/internal/config"
	"github.com/upay2home/auth-backend/internal/logging"
	miniorepo "github.com/upay2home/auth-backend/internal/repository/minio"
	"github.com/upay2home/auth-backend/internal/repository/postgres"
	redisrepo "github.com/upay2home/auth-backend/internal/repository/redis"
	"github.com/upay2home/auth-backend/internal/service"
	"github.com/upay2home/auth-backend/internal/telemetry"
	transporthttp "github.com/upay2home/auth-backend/internal/transport/http"
	"github.com/upay2home/auth-backend/internal/transport/mail"
	"github.com/upay2home/auth-backend/internal/util"
)

const serviceName = "upay2home-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		LogstashTCP: cfg.LogstashTCPAddr,
		Service:     serviceName,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}

	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	users := postgres.NewUserRepo(db)
	sessions := postgres.NewSessionRepo(db)

	if !cfg.MailerConfigured() {
		logger.Warn("smtp settings incomplete; reset emails will fail")
	}
	if cfg.BaseURL == "" {
		logger.Warn("no public base url configured; reset links will be relative")
	}
	mailer := mail.NewPasswordResetMailer(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		UseTLS:   cfg.SMTPUseTLS,
		Brand:    cfg.BrandName,
	})

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithTimeouts(cfg.DBTimeout, cfg.MailTimeout),
	}

	if cfg.MinIOConfigured() {
		client, err := miniorepo.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return err
		}
		storage := miniorepo.NewStorage(client, cfg.MinIOPublicURL)
		if err := storage.EnsureBucket(ctx, cfg.MinIOBucketAvatars); err != nil {
			logger.Warn("avatar cache disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, service.WithAvatarStorage(storage, cfg.MinIOBucketAvatars))
		}
	}

	if cfg.RedisURL != "" && cfg.ResetRequestCooldown > 0 {
		client, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, service.WithResetThrottle(redisrepo.NewResetThrottle(client), cfg.ResetRequestCooldown))
	}

	jwtManager := util.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL)
	authService := service.NewAuthService(users, sessions, mailer, jwtManager, cfg.GoogleClientID, cfg.BaseURL, opts...)

	e := transporthttp.NewRouter(cfg.AllowOrigins, logger)
	transporthttp.RegisterAuth(e, authService, logger)
	transporthttp.RegisterPasswordReset(e, authService, logger)
	transporthttp.RegisterSwagger(e, docs.SwaggerYAML)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", slog.String("error", err.Error()))
	}
	logger.Info("shutdown complete")
	return nil
}

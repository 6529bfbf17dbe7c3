// Command api runs the identity service HTTP API.
//
// @title                       Identity Service API
// @version                     1.0
// @description                 Login, token issuance, refresh rotation and session termination.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api"
	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/core/service"
	mongostore "github.com/99minutos/identity-service/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/identity-service/internal/infrastructure/db/redis"
	"github.com/99minutos/identity-service/internal/infrastructure/password"
	"github.com/99minutos/identity-service/internal/infrastructure/queue"
	"github.com/99minutos/identity-service/internal/pkg/config"
	"github.com/99minutos/identity-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Best effort: real environment variables win when no .env exists.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.Init(logger.Options{Service: "identity-service"})
		boot.Fatal().Err(err).Msg("load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "identity-service",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("identity service stopped")
	}
	log.Info().Msg("goodbye")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	mongoClient, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "identity-service",
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.StoreTimeout,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	issuer, err := service.NewTokenIssuer(service.IssuerConfig{
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		ExpiryMinutes: cfg.JWT.ExpiryMinutes,
	}, log)
	if err != nil {
		return err
	}

	hasher := password.NewBcrypt(cfg.BcryptCost)
	credentials := mongostore.NewCredentialRepository(db, hasher)
	if err := credentials.EnsureIndexes(ctx); err != nil {
		return err
	}

	refresh := service.NewRefreshTokens(redisstore.NewKeyValueStore(rdb), cfg.Refresh.TTL)

	dispatcher := queue.NewDispatcher(cfg.TaskWorkers, log.With().Str("component", "tasks").Logger())
	queue.RegisterAuthHandlers(dispatcher, refresh, log)
	dispatcher.Start(ctx)

	authService := service.NewAuthService(service.AuthDeps{
		Store:        credentials,
		Hasher:       hasher,
		Issuer:       issuer,
		Refresh:      refresh,
		Policy:       cfg.Lockout,
		Tasks:        dispatcher,
		StoreTimeout: cfg.StoreTimeout,
	}, log)

	if err := seedAdmin(ctx, authService, cfg.Admin); err != nil {
		return err
	}

	e := api.NewRouter(api.Dependencies{
		AuthService: authService,
		Verifier:    issuer,
		Health: map[string]handler.Pinger{
			"mongo": mongostore.Pinger{Client: mongoClient},
			"redis": redisstore.Pinger{Client: rdb},
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)

	// Workers run their buffered tasks before the stores are closed.
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-sctx.Done():
		log.Warn().Msg("task queue not drained before shutdown deadline")
	}
	return err
}

// seedAdmin creates the configured administrator once. An existing account
// is left untouched.
func seedAdmin(ctx context.Context, svc ports.AuthService, admin config.AdminConfig) error {
	if admin.Email == "" {
		return nil
	}
	_, err := svc.Register(ctx, ports.RegisterInput{
		Email:    admin.Email,
		Password: admin.Password,
		Roles:    []string{domain.RoleAdmin, domain.RoleUser},
	})
	if err != nil && !errors.Is(err, domain.ErrUserExists) {
		return err
	}
	return nil
}

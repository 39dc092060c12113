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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"storeadmin/internal/auth"
	"storeadmin/internal/config"
	"storeadmin/internal/database"
	"storeadmin/internal/email"
	"storeadmin/internal/logging"
	redisx "storeadmin/internal/redis"
	"storeadmin/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("log setup error", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logging.Error(logger, "server stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	accounts, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var audit auth.Auditor
	if cfg.RedisURL != "" {
		redisClient, err := redisx.New(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, audit trail disabled", "error", err)
		} else {
			defer redisClient.Close()
			audit = &auth.AuditLogger{Redis: redisClient, MaxLen: 10000}
		}
	}

	if !cfg.Email.Enabled() {
		logger.Warn("email is not configured, registrations will fail to send codes")
	}

	sessions, err := auth.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	workflow := &auth.Workflow{
		Accounts:      accounts,
		Hasher:        auth.NewBcryptHasher(cfg.BcryptCost),
		OTP:           auth.NewOTPIssuer(cfg.OTPIssuer),
		Sessions:      sessions,
		Mailer:        email.NewSender(cfg.Email),
		AllowedDomain: cfg.AllowedEmailDomain,
		Logger:        logger,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api, err := server.NewServer(cfg, workflow, audit, registry, logger)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "store", cfg.DatabaseDriver())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects the account store selected by DATABASE_URL. The
// returned func releases the connection.
func openStore(ctx context.Context, cfg config.Config) (auth.AccountStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	switch cfg.DatabaseDriver() {
	case "postgres":
		pool, err := database.Connect(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewPostgresStore(pool), pool.Close, nil
	default:
		client, err := database.ConnectMongo(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}

		store := auth.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	}
}

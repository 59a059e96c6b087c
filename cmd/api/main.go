package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/campus-wallet/internal/config"
	"github.com/josh-kwaku/campus-wallet/internal/events"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/handler"
	"github.com/josh-kwaku/campus-wallet/internal/lock"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/metrics"
	"github.com/josh-kwaku/campus-wallet/internal/qrcode"
	"github.com/josh-kwaku/campus-wallet/internal/reference"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
	"github.com/josh-kwaku/campus-wallet/internal/service/funding"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
	"github.com/josh-kwaku/campus-wallet/internal/service/transfer"
	"github.com/josh-kwaku/campus-wallet/internal/service/wallet"
)

const (
	verifyLockPrefix   = "verify:"
	inFlightLockPrefix = "inflight:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("campus-wallet", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	m := metrics.New()

	var publisher ledger.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kp.Close()
		publisher = kp
	} else {
		slog.Info("kafka brokers not configured, transaction events will not be published")
	}

	users := repository.NewUserRepository(db)
	accounts := repository.NewAccountRepository(db)
	entries := repository.NewBalanceEntryRepository(db)
	txns := repository.NewTransactionRepository(db)
	txnEvents := repository.NewTransactionEventRepository(db)
	codes := repository.NewPaymentCodeRepository(db)
	webhooks := repository.NewWebhookEventRepository(db)
	idempotency := repository.NewIdempotencyRepository(rdb, cfg.IdempotencyTTL)

	walletSvc := wallet.NewService(users, accounts, entries, db)
	ledgerSvc := ledger.NewService(txns, txnEvents, walletSvc, reference.NewTokenAllocator(), publisher, m, db)

	gw := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayBaseURL,
		SecretKey: cfg.GatewaySecretKey,
		Currency:  cfg.Currency,
		Timeout:   cfg.GatewayTimeout,
	}, m)
	fundingSvc := funding.NewService(gw, lock.NewLocker(rdb, verifyLockPrefix, cfg.VerifyLockTTL), users, ledgerSvc)
	transferSvc := transfer.NewService(users, walletSvc, ledgerSvc, codes, qrcode.NewEncoder(0), fundingSvc, m)

	processor := funding.NewWebhookProcessor(webhooks, fundingSvc, m, logger, funding.WebhookProcessorConfig{
		Interval:    cfg.WebhookPollInterval,
		Lease:       cfg.WebhookLease,
		MaxAttempts: cfg.WebhookMaxAttempts,
	})
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		processor.Start(ctx)
	}()

	writeTimeout := cfg.GatewayTimeout + 15*time.Second
	routes := newRouter(routerDeps{
		cfg:          cfg,
		health:       handler.NewHealthHandler(db, redisPinger{rdb}),
		auth:         handler.NewAuthHandler(users, cfg.JWTSecret, cfg.JWTExpiry),
		users:        handler.NewUserHandler(walletSvc),
		accounts:     handler.NewAccountHandler(walletSvc),
		transfers:    handler.NewTransferHandler(transferSvc),
		paymentCodes: handler.NewPaymentCodeHandler(transferSvc),
		funding:      handler.NewFundingHandler(fundingSvc),
		transactions: handler.NewTransactionHandler(ledgerSvc, fundingSvc),
		webhooks:     handler.NewWebhookHandler(webhooks, cfg.WebhookSecret),
		idempotency:  idempotency,
		inFlight:     lock.NewLocker(rdb, inFlightLockPrefix, writeTimeout),
		metrics:      m.Handler(),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	<-processorDone
	slog.Info("server stopped")
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

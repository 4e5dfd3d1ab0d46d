package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/app"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/cache"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/config"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/jobs"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/lock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/storage/postgres"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/sweeper"
	transporthttp "github.com/Mgahed/flash-sale-concurrency-api/internal/transport/http"
	"github.com/Mgahed/flash-sale-concurrency-api/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	cfg := config.Load()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping")
	}

	clk := clock.NewSystem()

	holdRepo := postgres.NewHoldRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	webhookRepo := postgres.NewWebhookRepository(pool)

	cacheCoordinator := cache.NewCoordinator(redisClient, cfg.CacheTTL)
	locker := app.NewLockerAdapter(lock.NewLocker(redisClient))
	stockCalc := app.NewStockCalculator(holdRepo, clk)
	cacheReader := cache.NewReader(cacheCoordinator, stockCalc, holdRepo)

	holdCfg := app.HoldServiceConfig{
		HoldTTL:            cfg.HoldTTL,
		ProductLockWait:    cfg.ProductLockWait,
		ProductLockHold:    cfg.ProductLockHold,
		HoldLockWait:       cfg.HoldLockWait,
		HoldLockHold:       cfg.HoldLockHold,
		CacheLockWait:      cfg.CacheLockWait,
		CacheLockHold:      cfg.CacheLockHold,
		MaxDeadlockRetries: cfg.MaxDeadlockRetries,
		DeadlockBaseDelay:  cfg.DeadlockBaseDelay,
	}
	holdSvc := app.NewHoldService(holdRepo, locker, cacheCoordinator, clk, holdCfg, logger)
	orderSvc := app.NewOrderService(orderRepo, holdSvc, clk, logger)
	webhookSvc := app.NewWebhookService(webhookRepo, orderSvc, logger)
	orderSvc.SetReconciler(webhookSvc)

	jobQueue := jobs.NewQueue(redisClient)
	jobWorker := jobs.NewWorker(jobQueue, func(ctx context.Context, holdID int64) error {
		_, err := holdSvc.ReleaseHold(ctx, holdID)
		return err
	}, logger)

	expirySweeper := sweeper.New(holdRepo, jobQueue, clk, logger, cfg.SweepInterval)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go jobWorker.Run(workerCtx)
	go expirySweeper.Run(workerCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/products/", transporthttp.HandleGetProduct(cacheReader))
	mux.Handle("/holds", transporthttp.HandleCreateHold(holdSvc))
	mux.Handle("/orders", transporthttp.HandleCreateOrder(orderSvc))
	mux.Handle("/payments/webhook", transporthttp.HandleWebhook(webhookSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	creditapp "github.com/lendcore/backend/internal/application/credit"
	"github.com/lendcore/backend/internal/infrastructure/config"
	"github.com/lendcore/backend/internal/infrastructure/event"
	"github.com/lendcore/backend/internal/infrastructure/logger"
	"github.com/lendcore/backend/internal/infrastructure/persistence"
	"github.com/lendcore/backend/internal/infrastructure/pricing"
	"github.com/lendcore/backend/internal/infrastructure/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting credit sweep daemon",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Redis serves the collateral price feed
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	pingCancel()
	log.Info("Redis connected successfully")

	// Event store and event-sourced repositories
	serializer := event.NewCreditSerializer()
	store := persistence.NewEventStore(db.DB, serializer)
	facilityRepo := persistence.NewGormCreditFacilityRepository(db.DB, store)
	cycleRepo := persistence.NewGormInterestAccrualCycleRepository(db.DB, store)
	obligationRepo := persistence.NewGormObligationRepository(db.DB, store)

	// Ledger and collateral collaborators
	ledger := persistence.NewGormLedger(db.DB)
	collateral := persistence.NewGormCollateralBalances(db.DB)
	oracle := pricing.NewRedisPriceOracle(
		rdb,
		cfg.Credit.PriceFeedKey,
		cfg.Credit.PriceCacheTTL,
		pricing.WithOracleLogger(log),
	)

	// Application services
	facilityService := creditapp.NewFacilityService(
		facilityRepo, cycleRepo, obligationRepo,
		ledger, oracle, collateral, log,
		creditapp.WithUpgradeBuffer(decimal.NewFromFloat(cfg.Credit.UpgradeBufferCVL)),
	)
	interestService := creditapp.NewInterestService(
		facilityRepo, cycleRepo, obligationRepo, ledger, log,
	)
	obligationService := creditapp.NewObligationService(obligationRepo, ledger, log)

	// Sweep scheduler
	if !cfg.Scheduler.Enabled {
		log.Fatal("Scheduler is disabled; the daemon has nothing to run")
	}

	executor := scheduler.NewCreditSweepExecutor(
		facilityService, interestService, obligationService, log,
	)
	sweepScheduler := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, executor, log)

	if err := sweepScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sweep scheduler", zap.Error(err))
	}
	defer func() {
		if err := sweepScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping sweep scheduler", zap.Error(err))
		}
	}()
	log.Info("Sweep scheduler started",
		zap.Int("max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs),
		zap.Duration("job_timeout", cfg.Scheduler.JobTimeout),
	)

	trigger, err := scheduler.NewCronTrigger(cfg.Scheduler.DailyCronSchedule, sweepScheduler, log)
	if err != nil {
		log.Fatal("Invalid daily sweep schedule", zap.Error(err))
	}
	if err := trigger.Start(context.Background()); err != nil {
		log.Fatal("Failed to start cron trigger", zap.Error(err))
	}
	defer func() {
		if err := trigger.Stop(context.Background()); err != nil {
			log.Error("Error stopping cron trigger", zap.Error(err))
		}
	}()
	log.Info("Daily sweep trigger armed",
		zap.String("cron", cfg.Scheduler.DailyCronSchedule),
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")
}

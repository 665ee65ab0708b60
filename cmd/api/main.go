package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/hotelportal/account-recovery/internal/api/http"
	"github.com/hotelportal/account-recovery/internal/api/http/handlers"
	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/observability"
	"github.com/hotelportal/account-recovery/internal/persistence"
	"github.com/hotelportal/account-recovery/internal/repository"
	"github.com/hotelportal/account-recovery/internal/repository/memory"
	"github.com/hotelportal/account-recovery/internal/service"
	"github.com/hotelportal/account-recovery/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("failed to connect amqp", zap.Error(err))
		}
		publisher = amqpPublisher
		logger.Info("publishing recovery events to amqp", zap.String("exchange", cfg.AMQP.Exchange))
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, publisher, logger)
	worker.StartNotificationWorker(ctx, notificationService, publisher, logger)

	deps := service.RecoveryDependencies{
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Locker:     lock.NewKeyedMutex(),
	}
	if redis.Enabled() {
		deps.Locker = lock.NewRedisLocker(redis.Client, cfg.Redis.KeyPrefix, cfg.Lockout.AccountLockTTL())
	}
	if pg.Enabled() {
		deps.Accounts = repository.NewAccountRepository(pg.Pool)
		deps.Tickets = repository.NewIncidentTicketRepository(pg.Pool)
		deps.Tx = repository.NewTxRunner(pg.Pool)
	} else {
		accounts := memory.NewAccountStore()
		seedAdmin(cfg.Auth, accounts, logger)
		deps.Accounts = accounts
		deps.Tickets = memory.NewTicketStore()
		deps.Tx = memory.TxRunner{}
	}

	guard := service.NewAttemptGuard(cfg.Lockout, deps)
	ticketRegistry := service.NewTicketRegistry(cfg.Lockout, deps)
	workflow := service.NewResolutionWorkflow(cfg.Lockout, deps)
	orchestrator := service.NewLoginOrchestrator(cfg.Lockout, deps, guard, ticketRegistry)
	accountService := service.NewAccountService(*cfg, deps)
	authMiddleware := auth.NewAuthMiddleware(accountService.Sessions(), deps.Accounts)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Login:          handlers.NewLoginHandler(orchestrator, accountService),
		Accounts:       handlers.NewAccountsHandler(accountService, workflow),
		Tickets:        handlers.NewTicketsHandler(ticketRegistry, workflow),
		AuthMiddleware: authMiddleware,
		Throttle:       httptransport.NewIPThrottle(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst),
		Metrics:        adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	})

	logger.Info("account recovery service starting",
		zap.String("addr", cfg.App.Addr()),
		zap.Int("lockout_threshold", guard.Threshold()),
		zap.Bool("postgres", pg.Enabled()),
		zap.Bool("redis", redis.Enabled()))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
}

// seedAdmin registers one administrator in the in-memory store so a
// database-less instance can be operated.
func seedAdmin(cfg config.AuthConfig, accounts *memory.AccountStore, logger *zap.Logger) {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return
	}
	secret, err := auth.HashPassword(cfg.SeedAdminPassword, cfg.BcryptCost)
	if err != nil {
		logger.Fatal("failed to hash seed admin credential", zap.Error(err))
	}
	id := uuid.NewString()
	accounts.Put(&domain.Account{
		ID:               id,
		Email:            cfg.SeedAdminEmail,
		Role:             domain.AccountRoleAdmin,
		CredentialSecret: secret,
	})
	logger.Info("seeded in-memory admin account", zap.String("account_id", id), zap.String("email", cfg.SeedAdminEmail))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

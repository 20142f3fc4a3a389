package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"clientportal/config"
	"clientportal/internal/httpserver"
	"clientportal/internal/mqhandler"
	"clientportal/internal/repository"
	"clientportal/internal/service/sweeper"
	"clientportal/pkg/circuitbreaker"
	pkgconfig "clientportal/pkg/config"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
	"clientportal/pkg/mq"
	"clientportal/pkg/otel"
	"clientportal/pkg/outbox"
	redisclient "clientportal/pkg/redis"
	"clientportal/pkg/util"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	log.Info("Starting clientportal worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("queue", cfg.Worker.Queue),
	)

	shutdownOtel, err := otel.Init(cfg.Otel, cfg.ServiceName+"-worker", pkgconfig.GetConfigEnv(), log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Outbox dispatcher：把业务事务写入的变更投递到 events 交换机
	dispatcher := outbox.NewDispatcher(outbox.NewStore(dbConn), publisher, logger.Named(log, "outbox")).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithBreaker(circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()))
	go dispatcher.Start(ctx)

	// Repositories
	profileRepo := repository.NewProfileRepository(dbConn, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	invoiceRepo := repository.NewInvoiceRepository(dbConn, log)
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// 过期发票和截止提醒
	sweep := sweeper.NewService(invoiceRepo, projectRepo, notificationRepo, deduper, cfg.Worker.ReminderDays, logger.Named(log, "sweeper"))
	go sweep.Run(ctx, cfg.Worker.SweepInterval)

	fanout := mqhandler.NewNotificationFanoutHandler(
		notificationRepo,
		profileRepo,
		clientRepo,
		deduper,
		util.NewRetryCounter(rdb, 24*time.Hour),
		publisher,
		cfg.Portal.Currency,
		logger.Named(log, "fanout"),
	)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Worker.Queue, mqhandler.FanoutRoutingKeys, mq.DurableQueue, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := mq.DeclareDLQQueues(consumer.Channel(), append([]string{"invalid"}, mqhandler.FanoutRoutingKeys...)...); err != nil {
		log.Fatal("Failed to declare DLQ queues", zap.Error(err))
	}

	consumer.SetHandler(fanout.Handle)
	go func() {
		if err := consumer.StartConsuming(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Fan-out consumer stopped", zap.Error(err))
			stop()
		}
	}()

	// HTTP Server (health checks + metrics)
	srv := &http.Server{
		Addr:    cfg.Worker.HealthPort,
		Handler: httpserver.NewHealthRouter(dbConn).Engine,
	}
	go func() {
		log.Info("Health server starting", zap.String("addr", cfg.Worker.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("clientportal worker is running")

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down worker gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
	log.Info("Worker shutdown complete")
}

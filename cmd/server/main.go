package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"clientportal/config"
	"clientportal/internal/handler"
	"clientportal/internal/httpserver"
	"clientportal/internal/realtime"
	"clientportal/internal/repository"
	"clientportal/internal/service/auth"
	"clientportal/internal/service/dashboard"
	"clientportal/internal/service/requests"
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

	log.Info("Starting clientportal API server...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.DB.Host),
	)

	shutdownOtel, err := otel.Init(cfg.Otel, cfg.ServiceName+"-server", pkgconfig.GetConfigEnv(), log)
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

	// MQ Publisher（仅用于管理接口重放 outbox 事件）
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbConn)
	profileRepo := repository.NewProfileRepository(dbConn, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	requestRepo := repository.NewRequestRepository(dbConn, log)
	invoiceRepo := repository.NewInvoiceRepository(dbConn, log)
	categoryRepo := repository.NewCategoryRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)

	// Services
	authService := auth.NewService(dbConn, userRepo, profileRepo, clientRepo, rdb, cfg.JWT, cfg.Auth.DemoAccounts, logger.Named(log, "auth"))
	dashboardService := dashboard.NewService(clientRepo, projectRepo, requestRepo, invoiceRepo, logger.Named(log, "dashboard"))
	requestService := requests.NewService(dbConn, requestRepo, projectRepo, clientRepo, logger.Named(log, "requests"))
	replayService := outbox.NewReplayService(outbox.NewStore(dbConn), publisher)

	// Realtime: 每个实例一个独占队列
	hub := realtime.NewHub(logger.Named(log, "realtime"))
	source := realtime.NewMQSource(cfg.MQ.URL, realtime.Tables,
		util.NewDeduper(rdb, cfg.Realtime.DedupTTL, log), logger.Named(log, "realtime"))
	go func() {
		if err := hub.Run(ctx, source); err != nil {
			log.Error("Realtime hub stopped", zap.Error(err))
		}
	}()

	// Handlers
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Profile:       handler.NewProfileHandler(profileRepo, log),
		Dashboard:     handler.NewDashboardHandler(dashboardService, log),
		Projects:      handler.NewProjectHandler(projectRepo, clientRepo, log),
		Requests:      handler.NewRequestHandler(requestRepo, requestService, clientRepo, log),
		Clients:       handler.NewClientHandler(clientRepo, log),
		Invoices:      handler.NewInvoiceHandler(invoiceRepo, clientRepo, log),
		Categories:    handler.NewCategoryHandler(categoryRepo, log),
		Notifications: handler.NewNotificationHandler(notificationRepo, log),
		Realtime:      handler.NewRealtimeHandler(hub, clientRepo, cfg.Realtime.Heartbeat, log),
		Admin:         handler.NewAdminHandler(replayService, log),
	}, authService, dbConn, logger.Named(log, "http"))

	// SSE 连接跟随 ctx 结束
	srv := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router.Engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down API server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("API server shutdown complete")
}

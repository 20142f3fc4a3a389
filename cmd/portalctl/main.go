package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"clientportal/config"
	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/model"
	"clientportal/internal/portal"
	"clientportal/internal/realtime"
	"clientportal/internal/repository"
	"clientportal/internal/service/auth"
	"clientportal/internal/service/dashboard"
	"clientportal/internal/session"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
	redisclient "clientportal/pkg/redis"
	"clientportal/pkg/util"
)

func main() {
	var (
		configDir = flag.String("config", "config", "config directory")
		email     = flag.String("email", "", "sign in with this email")
		password  = flag.String("password", "", "password for -email")
		token     = flag.String("token", os.Getenv("PORTAL_TOKEN"), "resume an existing session")
		tab       = flag.String("tab", "", "tab to render; empty lists the tabs for the signed-in role")
		watch     = flag.Bool("watch", false, "re-render when the underlying tables change")
	)
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	// 终端输出留给渲染，日志只记 warn 以上
	if !cfg.Log.Development {
		cfg.Log.Level = "warn"
	}
	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *email, *password, *token, portal.Tab(*tab), *watch); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, email, password, token string, tab portal.Tab, watch bool) error {
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer dbConn.Close()

	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(dbConn)
	profileRepo := repository.NewProfileRepository(dbConn, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	requestRepo := repository.NewRequestRepository(dbConn, log)
	invoiceRepo := repository.NewInvoiceRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)

	authService := auth.NewService(dbConn, userRepo, profileRepo, clientRepo, rdb, cfg.JWT, cfg.Auth.DemoAccounts, logger.Named(log, "auth"))
	dashboardService := dashboard.NewService(clientRepo, projectRepo, requestRepo, invoiceRepo, logger.Named(log, "dashboard"))

	store := session.NewStore(authService, profileRepo, logger.Named(log, "session"))
	defer store.Close()

	if token != "" {
		err = store.Init(ctx, token)
	} else {
		err = store.SignIn(ctx, email, password)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	state := store.State()
	if state.Phase != session.PhaseAuthenticated {
		return fmt.Errorf("not signed in: pass -email/-password or a valid -token")
	}
	if token == "" {
		fmt.Fprintf(os.Stderr, "PORTAL_TOKEN=%s\n", state.Token())
	}

	viewer := portal.Viewer{
		UserID:   state.User.ID,
		Role:     state.Role(),
		Profile:  state.Profile,
		Currency: cfg.Portal.Currency,
	}
	if viewer.Role == model.RoleClient {
		c, err := clientRepo.FindByUserID(ctx, viewer.UserID)
		if err != nil {
			return fmt.Errorf("resolve client: %w", err)
		}
		if c != nil {
			viewer.ClientID = &c.ID
		}
	}

	if tab == "" {
		tabs := portal.Tabs(viewer.Role)
		names := make([]string, len(tabs))
		for i, t := range tabs {
			names[i] = string(t)
		}
		name := state.User.Email
		if state.Profile != nil {
			name = state.Profile.FullName
		}
		fmt.Printf("%s (%s): %s\n", name, viewer.Role, strings.Join(names, ", "))
		return nil
	}

	data := portal.NewRepositoryData(dashboardService, clientRepo, projectRepo, requestRepo, invoiceRepo, notificationRepo)
	render := func() error {
		return portal.Render(ctx, os.Stdout, data, viewer, tab)
	}
	if err := render(); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	hub := realtime.NewHub(logger.Named(log, "realtime"))
	source := realtime.NewMQSource(cfg.MQ.URL, realtime.Tables,
		util.NewDeduper(rdb, cfg.Realtime.DedupTTL, log), logger.Named(log, "realtime"))

	trigger, cancel := realtime.Debounce(cfg.Realtime.Debounce, func() {
		fmt.Println()
		if err := render(); err != nil {
			log.Warn("Re-render failed", zap.Error(err))
		}
	})
	defer cancel()
	onChange := func(*mqcontracts.ChangePayload) { trigger() }

	subs := []func() (*realtime.Subscription, error){
		func() (*realtime.Subscription, error) { return realtime.SubscribeToProjects(hub, onChange) },
		func() (*realtime.Subscription, error) { return realtime.SubscribeToProjectRequests(hub, onChange) },
		func() (*realtime.Subscription, error) {
			return hub.Subscribe("invoices_changes", realtime.Filter{Table: "invoices", Event: realtime.EventAll}, onChange)
		},
		func() (*realtime.Subscription, error) {
			return realtime.SubscribeToNotifications(hub, viewer.UserID, onChange)
		},
	}
	for _, subscribe := range subs {
		sub, err := subscribe()
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		defer sub.Unsubscribe()
	}

	err = hub.Run(ctx, source)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

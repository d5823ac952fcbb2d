package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/chat"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/handlers"
	"github.com/pharmalink/pharmalink-backend/internal/middleware"
	"github.com/pharmalink/pharmalink-backend/internal/platform/envutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/realtime/bus"
	"github.com/pharmalink/pharmalink-backend/internal/server"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

func main() {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	jwtSecret := envutil.String("JWT_SECRET_KEY", "")
	accessTTL := envutil.Duration("ACCESS_TOKEN_TTL", 7*24*time.Hour)
	adminKey := envutil.String("ADMIN_API_KEY", "")
	sweepInterval := envutil.Duration("EXPIRY_SWEEP_INTERVAL", 30*time.Second)
	pollInterval := envutil.Duration("BROADCAST_POLL_INTERVAL", 2*time.Second)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	gdb := postgresService.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Fatal("postgres auto migration failed", "error", err)
	}
	txRunner := db.NewGormTxRunner(gdb)

	// Repos
	userRepo := user.NewUserRepo(gdb, log)
	requestRepo := request.NewRequestRepo(gdb, log)
	responseRepo := request.NewResponseRepo(gdb, log)
	channelRepo := chat.NewChannelRepo(gdb, log)
	messageRepo := chat.NewMessageRepo(gdb, log)
	statsRepo := stats.NewStatsRepo(gdb, log)

	// Realtime
	hub := realtime.NewHub(log)
	eventBus, err := bus.NewRedisBus(log)
	if err != nil {
		log.Warn("redis bus unavailable, realtime fan-out limited to this instance", "error", err)
		eventBus = nil
	}

	// Services
	pushService := services.NewPushService(log)
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Warn("bucket service unavailable, uploads disabled", "error", err)
		bucketService = nil
	}
	authService, err := services.NewAuthService(gdb, log, txRunner, userRepo, statsRepo, jwtSecret, accessTTL)
	if err != nil {
		log.Fatal("auth service init failed", "error", err)
	}
	accountService := services.NewAccountService(gdb, log, userRepo)
	requestService := services.NewRequestService(gdb, log, txRunner, requestRepo, statsRepo, eventBus)
	responseService := services.NewResponseService(gdb, log, txRunner, requestRepo, responseRepo, channelRepo, messageRepo, userRepo, eventBus, pushService)
	chatService := services.NewChatService(gdb, log, txRunner, channelRepo, messageRepo, userRepo, eventBus, pushService)
	broadcastService := services.NewBroadcastService(log, requestRepo, pollInterval)
	notifier := services.NewNotifier(log, userRepo, pushService)
	sweeper := services.NewSweeper(log, requestRepo, statsRepo, eventBus, sweepInterval)

	// Handlers
	routerCfg := server.RouterConfig{
		HealthcheckHandler: handlers.NewHealthcheckHandler(gdb),
		AuthHandler:        handlers.NewAuthHandler(authService, accountService),
		AuthMiddleware:     middleware.NewAuthMiddleware(log, authService),
		RequestHandler:     handlers.NewRequestHandler(requestService, responseService, broadcastService, accountService),
		ChatHandler:        handlers.NewChatHandler(chatService),
		PharmacyHandler:    handlers.NewPharmacyHandler(accountService),
		UploadHandler:      handlers.NewUploadHandler(bucketService),
		SSEHandler:         handlers.NewSSEHandler(log, hub, chatService, broadcastService, notifier),
		AdminHandler:       handlers.NewAdminHandler(adminKey, statsRepo, requestService, accountService),
	}
	router := server.NewRouter(routerCfg)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bus events fan into the local hub and nudge the broadcast engine so
	// live queries refresh ahead of the next poll tick.
	if eventBus != nil {
		err = eventBus.StartForwarder(rootCtx, func(m realtime.Message) {
			hub.Broadcast(m)
			if m.Channel == realtime.RequestFeed {
				broadcastService.Nudge()
			}
		})
		if err != nil {
			log.Fatal("bus forwarder start failed", "error", err)
		}
	}

	addr := ":" + envutil.String("PORT", "8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		broadcastService.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		notifier.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		if eventBus != nil {
			_ = eventBus.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", "error", err)
	}
	log.Info("shutdown complete")
}

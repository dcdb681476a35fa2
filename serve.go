package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/fanout"
	grpcserver "chat-sync/internal/grpc"
	"chat-sync/internal/handlers"
	"chat-sync/internal/logger"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/relay"
	"chat-sync/internal/repositories"
	"chat-sync/internal/service"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

const serviceName = "chat-sync"

type routes struct {
	dialogs     *handlers.DialogHandler
	messages    *handlers.MessageHandler
	updates     *handlers.UpdatesHandler
	ws          *ws.Handler
	auth        gin.HandlerFunc
	sessions    handlers.SessionCounter
	nodeID      string
	debugRoutes bool
}

func newRouter(r routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node_id": r.nodeID})
	})

	router.GET("/dialogs", r.auth, r.dialogs.ListDialogs)
	router.POST("/dialogs/read", r.auth, r.dialogs.ReadMessages)
	router.POST("/dialogs/unread", r.auth, r.dialogs.MarkAsUnread)
	router.PATCH("/dialogs", r.auth, r.dialogs.UpdateDialog)

	router.GET("/messages", r.auth, r.messages.GetChatHistory)
	router.POST("/messages", r.auth, r.messages.SendMessage)
	router.POST("/messages/delete", r.auth, r.messages.DeleteMessages)
	router.POST("/compose", r.auth, r.messages.SendComposeAction)

	router.GET("/updates", r.auth, r.updates.GetUpdates)
	router.GET("/updates/state", r.auth, r.updates.GetUpdatesState)

	router.GET("/ws", r.ws.Handle)

	handlers.RegisterDebugRoutes(router, r.sessions, r.nodeID, r.debugRoutes)
	return router
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	log = log.With(zap.String("node_id", nodeID))

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	database, err := db.Connect(cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewStore(database)

	chatRepo := repositories.NewChatRepo()
	spaceRepo := repositories.NewSpaceRepo()
	messageRepo := repositories.NewMessageRepo()
	dialogRepo := repositories.NewDialogRepo()
	updateRepo := repositories.NewUpdateRepo()

	events := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer events.Close()
	mode, reason := rabbitmq.Describe(events)
	log.Info("event publisher ready", zap.String("mode", mode), zap.String("noop_reason", reason))

	registry := ws.NewRegistry()
	fan := fanout.New(updateRepo, registry, events, log)

	if cfg.NATSURL != "" {
		nc, err := relay.Connect(cfg.NATSURL, log)
		if err != nil {
			return err
		}
		defer nc.Drain()

		rl := relay.New(nc, nodeID, fan, log)
		if err := rl.Start(nc); err != nil {
			return err
		}
		defer rl.Stop()
		fan.SetRelay(rl)
	} else {
		log.Info("relay disabled", zap.String("reason", "empty nats url"))
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fan.Close(drainCtx)
	}()

	svc := service.New(service.Deps{
		Tx:        store,
		Chats:     chatRepo,
		Spaces:    spaceRepo,
		Messages:  messageRepo,
		Dialogs:   dialogRepo,
		Updates:   updateRepo,
		Unread:    repositories.NewUnreadCalculator(messageRepo),
		Fanout:    fan,
		PageLimit: cfg.UpdatesPageLimit,
		Logger:    log,
	})

	tokens := auth.NewService(cfg.JWTSecret, cfg.JWTTTL)

	router := newRouter(routes{
		dialogs:     handlers.NewDialogHandler(svc, log),
		messages:    handlers.NewMessageHandler(svc, log),
		updates:     handlers.NewUpdatesHandler(svc, log),
		ws:          ws.NewHandler(registry, svc, tokens, events, cfg.SessionSendBuffer, log),
		auth:        middleware.AuthMiddleware(tokens),
		sessions:    registry,
		nodeID:      nodeID,
		debugRoutes: cfg.DebugRoutes,
	})

	health := grpcserver.NewHealthServer(database, log)
	health.Check(ctx)
	go health.Watch(ctx, 10*time.Second)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()
	defer health.Stop()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

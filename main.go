package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-chat-service/internal/ai"
	"support-chat-service/internal/bridge"
	"support-chat-service/internal/config"
	"support-chat-service/internal/db"
	"support-chat-service/internal/handlers"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/rabbitmq"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/router"
	"support-chat-service/internal/session"
	"support-chat-service/internal/storage"
	"support-chat-service/internal/telegram"
	"support-chat-service/internal/telemetry"
	"support-chat-service/internal/ws"
)

const serviceName = "support-chat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, closeDB, err := db.Connect(ctx, cfg.MongoURI, cfg.DatabaseName)
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer closeDB()

	blobs, err := storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioSecure)
	if err != nil {
		log.Fatalf("failed to connect to minio: %v", err)
	}

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	managerRepo := repositories.NewManagerRepo(database)

	seedAdminManager(ctx, managerRepo, cfg.AdminUserID)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("chat events publisher mode=%s", rabbitmq.PublisherMode(publisher))
	emitter := telemetry.NewChatEventEmitter(publisher, "chat", serviceName, cfg.Environment)

	generator := ai.NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel, cfg.ContextFile)

	client, err := telegram.NewClient(cfg.BotToken, cfg.OperatorGroupID, cfg.WebAppURL)
	if err != nil {
		log.Fatalf("failed to create telegram client: %v", err)
	}

	operatorBridge := bridge.New(client, messageRepo, blobs)
	sessions := session.NewService(chatRepo, messageRepo, userRepo, operatorBridge, generator, blobs, emitter)

	registry := ws.NewRegistry()
	messageRouter := router.New(registry, client, chatRepo, messageRepo, managerRepo, blobs, sessions)
	sessions.SetDeliverer(messageRouter)

	botHandlers := telegram.NewHandlers(client, messageRouter, sessions, managerRepo, userRepo, cfg.OperatorGroupID, cfg.AdminUserID)
	client.OnUpdate(botHandlers.HandleUpdate)
	go client.Start(ctx)
	go operatorBridge.RunReminders(ctx, chatRepo)

	wsHandler := ws.NewHandler(registry, userRepo, sessions, cfg.BotToken)
	chatHandler := handlers.NewChatHandler(chatRepo, sessions)
	mediaHandler := handlers.NewMediaHandler(chatRepo, messageRepo, blobs)

	engine := gin.Default()
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/", func(c *gin.Context) {
		if cfg.WebAppURL != "" {
			c.Redirect(http.StatusFound, cfg.WebAppURL)
			return
		}
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "ok"})
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/ws", wsHandler.Handle)
	engine.POST("/chat/:chat_id/feedback", chatHandler.Feedback)
	engine.POST("/chat/:chat_id/request_manager", chatHandler.RequestManager)
	engine.POST("/chat/:chat_id/take", chatHandler.TakeChat)
	engine.POST("/upload", mediaHandler.Upload)
	engine.GET("/api/media/*path", mediaHandler.Download)

	handlers.RegisterDebugRoutes(engine, emitter, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}
	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// seedAdminManager registers the configured admin as the first operator so a
// fresh deployment can take chats immediately.
func seedAdminManager(ctx context.Context, managers repositories.ManagerRepository, adminID int64) {
	if adminID == 0 {
		return
	}
	count, err := managers.CountManagers(ctx)
	if err != nil {
		log.Printf("manager seed: count: %v", err)
		return
	}
	if count > 0 {
		return
	}
	if err := managers.AddManager(ctx, adminID, "Admin"); err != nil {
		log.Printf("manager seed: add admin %d: %v", adminID, err)
		return
	}
	log.Printf("seeded admin %d as manager", adminID)
}

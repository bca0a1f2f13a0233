package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ghosttalk/internal/call"
	"ghosttalk/internal/chat"
	"ghosttalk/internal/config"
	"ghosttalk/internal/crypto"
	"ghosttalk/internal/db"
	"ghosttalk/internal/hub"
	myMiddleware "ghosttalk/internal/middleware"
	"ghosttalk/internal/user"
)

const ghostReaperInterval = time.Minute

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Platform layer: postgres + redis.
	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to DB")
	}
	log.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("❌ Migration failed")
	}
	log.Info("✅ Database Schema Initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to Redis")
	}
	log.Info("✅ Connected to Redis")

	// Identity feature.
	userRepo := user.NewRepository(database.Conn)

	// Real-time fan-out. The hub doubles as the presence registry and is
	// injected into every feature that needs to notify; nothing reaches
	// for a global.
	broadcastHub := hub.New(hub.NewRedisBroker(redisClient), userRepo, log)
	go broadcastHub.Run(ctx)

	userService := user.NewService(userRepo, broadcastHub, cfg.JWTSecret, log)
	userHandler := user.NewHandler(userService)

	// Messaging feature: store adapter, key manager, lifecycle engine.
	chatRepo := chat.NewRepository(database.Conn)
	keyManager := crypto.NewKeyManager(chatRepo, log)
	chatService := chat.NewService(chatRepo, userService, keyManager, broadcastHub, log)
	chatHandler := chat.NewHandler(chatService)
	go chatService.RunReaper(ctx, ghostReaperInterval)

	// Call signaling feature.
	callRepo := call.NewRepository(database.Conn)
	callService := call.NewService(callRepo, userService, broadcastHub, log)
	callHandler := call.NewHandler(callService)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes.
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes (require JWT).
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Patch("/api/users/settings", userHandler.UpdateSettings)

		r.Post("/api/friends/requests", userHandler.SendFriendRequest)
		r.Get("/api/friends/requests", userHandler.PendingRequests)
		r.Post("/api/friends/requests/{id}/accept", userHandler.AcceptFriendRequest)

		// WebSocket (real-time delivery, typing, rooms, signaling relay).
		r.Get("/ws", broadcastHub.ServeWs)

		r.Post("/api/messages", chatHandler.Send)
		r.Get("/api/messages", chatHandler.History)
		r.Post("/api/messages/{id}/read", chatHandler.MarkRead)
		r.Post("/api/messages/{id}/delivered", chatHandler.MarkDelivered)
		r.Get("/api/conversations", chatHandler.Conversations)

		r.Post("/api/calls", callHandler.Initiate)
		r.Post("/api/calls/{id}/end", callHandler.End)
		r.Get("/api/calls", callHandler.History)
	})

	server := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("🚀 Server starting on %s", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("bye")
}

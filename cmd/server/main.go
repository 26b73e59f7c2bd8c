package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dkolar7/paperback/internal/config"
	"github.com/dkolar7/paperback/internal/database"
	postgresrepo "github.com/dkolar7/paperback/internal/repository/postgres"
	"github.com/dkolar7/paperback/internal/service"
	"github.com/dkolar7/paperback/internal/transport/http/handlers"
	"github.com/dkolar7/paperback/internal/transport/http/middleware"
	"github.com/dkolar7/paperback/internal/transport/ws"
	"github.com/dkolar7/paperback/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	log.Info("connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	blockRepo := postgresrepo.NewBlockRepo(pool)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	conversationService := service.NewConversationService(convRepo, messageRepo, userRepo)
	chatService := service.NewChatService(conversationService, messageRepo, blockRepo, log)
	userService := service.NewUserService(userRepo, blockRepo)

	// Real-time hub
	hub := ws.NewHub(log)
	chatService.SetNotifier(ws.NewHubNotifier(hub, log))

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	chatHandler := handlers.NewChatHandler(conversationService, log)
	userHandler := handlers.NewUserHandler(userService, log)

	auth := middleware.Auth(authService)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// WebSocket (token-authenticated in the handler itself)
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, authService, chatService, conversationService, log))

	// Protected - Conversations
	mux.Handle("GET /api/v1/chat/conversations", auth(http.HandlerFunc(chatHandler.ListConversations)))
	mux.Handle("GET /api/v1/chat/conversations/{id}/messages", auth(http.HandlerFunc(chatHandler.ListMessages)))
	mux.Handle("DELETE /api/v1/chat/conversations/{id}", auth(http.HandlerFunc(chatHandler.HideConversation)))

	// Protected - Users
	mux.Handle("GET /api/v1/chat/users/search", auth(http.HandlerFunc(userHandler.Search)))
	mux.Handle("GET /api/v1/chat/users/blocked", auth(http.HandlerFunc(userHandler.ListBlocked)))
	mux.Handle("POST /api/v1/chat/users/{id}/block", auth(http.HandlerFunc(userHandler.Block)))
	mux.Handle("POST /api/v1/chat/users/{id}/unblock", auth(http.HandlerFunc(userHandler.Unblock)))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.CORS(cfg.CORSOrigin, mux),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}

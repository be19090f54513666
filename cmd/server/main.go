package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mhodzic/parley/internal/config"
	"github.com/mhodzic/parley/internal/database"
	"github.com/mhodzic/parley/internal/live"
	"github.com/mhodzic/parley/internal/push"
	postgresrepo "github.com/mhodzic/parley/internal/repository/postgres"
	"github.com/mhodzic/parley/internal/service"
	"github.com/mhodzic/parley/internal/storage"
	"github.com/mhodzic/parley/internal/transport/http/handlers"
	"github.com/mhodzic/parley/internal/transport/http/middleware"
	"github.com/mhodzic/parley/internal/transport/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database")

	// Redis is optional; without it live events stay in-process.
	var broker *live.Broker
	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable, using in-process event fan-out", "error", err)
		broker = live.NewBroker(nil, log)
	} else {
		defer rdb.Close()
		broker = live.NewBroker(rdb, log)
		go broker.Run(ctx)
		log.Info("connected to redis")
	}

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	contactRepo := postgresrepo.NewContactRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	msgRepo := postgresrepo.NewMessageRepo(pool)

	// External clients
	relay := push.NewHTTPRelay(cfg.PushRelayURL)
	blobs := storage.NewSupabaseClient(cfg.StorageURL, cfg.StorageBucket, cfg.StorageKey)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	contactService := service.NewContactService(contactRepo, userRepo)
	directoryService := service.NewDirectoryService(convRepo, userRepo, broker, log)
	messageService := service.NewMessageService(msgRepo, convRepo, broker, log)
	callService := service.NewCallService(userRepo, relay)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	contactHandler := handlers.NewContactHandler(contactService, log)
	convHandler := handlers.NewConversationHandler(directoryService, messageService, blobs, log)
	callHandler := handlers.NewCallHandler(callService, log)

	hub := ws.NewHub(directoryService, messageService, log)
	go hub.Run()

	auth := middleware.Auth(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Get("/users/me", authHandler.Me)
			r.Put("/users/me/device-token", authHandler.UpdateDeviceToken)

			r.Post("/contacts", contactHandler.Add)
			r.Get("/contacts", contactHandler.List)
			r.Put("/contacts/{id}", contactHandler.Rename)
			r.Delete("/contacts/{id}", contactHandler.Delete)

			r.Post("/conversations", convHandler.Ensure)
			r.Get("/conversations", convHandler.List)
			r.Get("/conversations/{id}/messages", convHandler.ListMessages)
			r.Post("/conversations/{id}/messages", convHandler.SendMessage)
			r.Post("/conversations/{id}/media", convHandler.SendMedia)
			r.Post("/conversations/{id}/read", convHandler.MarkRead)

			r.Post("/calls", callHandler.Start)
		})
	})

	r.Get("/ws", ws.ServeWS(hub, cfg.JWTSecret, log))

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Info("starting server", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/elis/elis-backend/internal/auth"
	authhandler "github.com/elis/elis-backend/internal/auth/handler"
	"github.com/elis/elis-backend/internal/auth/jwt"
	authservice "github.com/elis/elis-backend/internal/auth/service"
	dochandler "github.com/elis/elis-backend/internal/document/handler"
	docrepository "github.com/elis/elis-backend/internal/document/repository"
	docservice "github.com/elis/elis-backend/internal/document/service"
	imghandler "github.com/elis/elis-backend/internal/image/handler"
	imgrepository "github.com/elis/elis-backend/internal/image/repository"
	imgservice "github.com/elis/elis-backend/internal/image/service"
	"github.com/elis/elis-backend/internal/storage"
	userhandler "github.com/elis/elis-backend/internal/user/handler"
	userrepository "github.com/elis/elis-backend/internal/user/repository"
	userservice "github.com/elis/elis-backend/internal/user/service"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("api", cfg.Server.Environment)
	log.Info().Msg("starting API")

	// Connect to database and run migrations
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize job publisher
	publisher, err := messaging.NewJobPublisher(rmq,
		cfg.Extraction.ExchangeName,
		cfg.Extraction.QueueName,
		cfg.Extraction.RoutingKey,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job publisher")
	}

	// Initialize file storage
	files, err := storage.NewFileStore(cfg.Storage.Root)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file storage")
	}

	// Initialize repositories
	userRepo := userrepository.NewUserRepository(db)
	docRepo := docrepository.NewDocumentRepository(db)
	imgRepo := imgrepository.NewImageRepository(db)

	// Initialize services
	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authservice.NewAuthService(userRepo, jwtManager, cfg, log)
	userService := userservice.NewUserService(userRepo, files, log)
	docService := docservice.NewDocumentService(docRepo, userRepo, files, publisher, cfg, log)
	imgService := imgservice.NewImageService(imgRepo, docRepo, files, log)

	// Initialize handlers
	authHandler := authhandler.NewAuthHandler(authService, log)
	userHandler := userhandler.NewUserHandler(userService, log)
	adminHandler := userhandler.NewAdminHandler(userService, log)
	docHandler := dochandler.NewDocumentHandler(docService, log, cfg.Storage.MaxUploadBytes)
	imgHandler := imghandler.NewImageHandler(imgService, log)

	authenticated := auth.Middleware(jwtManager, userRepo)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "api",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public authentication endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/auth/me", authHandler.Me)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", userHandler.Me)
				r.Patch("/", userHandler.UpdateMe)
				r.Delete("/", userHandler.DeleteMe)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", docHandler.Upload)
				r.Get("/", docHandler.List)
				r.Get("/{id}", docHandler.Get)
				r.Get("/{id}/status", docHandler.Status)
				r.Get("/{id}/images", imgHandler.ListByDocument)
				r.Delete("/{id}", docHandler.Delete)
			})

			r.Route("/images", func(r chi.Router) {
				r.Get("/", imgHandler.List)
				r.Get("/{id}", imgHandler.Get)
				r.Get("/{id}/content", imgHandler.Content)
				r.Delete("/{id}", imgHandler.Delete)
			})

			// Admin endpoints
			r.Route("/admin/users", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/", adminHandler.List)
				r.Get("/{id}", adminHandler.Get)
				r.Patch("/{id}/quota", adminHandler.UpdateQuota)
				r.Patch("/{id}/status", adminHandler.UpdateStatus)
			})
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

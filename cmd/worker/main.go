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

	docrepository "github.com/elis/elis-backend/internal/document/repository"
	"github.com/elis/elis-backend/internal/extraction"
	imgrepository "github.com/elis/elis-backend/internal/image/repository"
	"github.com/elis/elis-backend/internal/storage"
	"github.com/elis/elis-backend/pkg/config"
	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/httputil"
	"github.com/elis/elis-backend/pkg/logger"
	"github.com/elis/elis-backend/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("worker", cfg.Server.Environment)
	log.Info().Msg("starting extraction worker")

	// Connect to database; migrations are owned by the API binary
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Publisher used to re-enqueue retried jobs
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

	// Initialize worker
	docRepo := docrepository.NewDocumentRepository(db)
	imgRepo := imgrepository.NewImageRepository(db)
	renderer := extraction.NewRenderer(cfg.Extraction.ImageQuality)
	worker := extraction.NewWorker(docRepo, imgRepo, files, renderer, publisher, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consumers
	consumers := make([]*messaging.JobConsumer, 0, cfg.Extraction.WorkerCount)
	for i := 0; i < cfg.Extraction.WorkerCount; i++ {
		consumer, err := messaging.NewJobConsumer(rmq,
			cfg.Extraction.ExchangeName,
			cfg.Extraction.QueueName,
			cfg.Extraction.RoutingKey,
			log.WithComponent(fmt.Sprintf("consumer-%d", i)),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create job consumer")
		}
		if err := consumer.Start(ctx, worker.Handle); err != nil {
			log.Fatal().Err(err).Msg("failed to start job consumer")
		}
		consumers = append(consumers, consumer)
	}

	// Health endpoint for liveness probes
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "worker",
			"database": db.Health(req.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")

	// Stop accepting new deliveries and drain the in-flight ones
	cancel()
	for _, consumer := range consumers {
		consumer.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/HoangTuan-git/action-E-project/internal/authtoken"
	"github.com/HoangTuan-git/action-E-project/internal/broker"
	"github.com/HoangTuan-git/action-E-project/internal/catalog"
	"github.com/HoangTuan-git/action-E-project/internal/intake"
	"github.com/HoangTuan-git/action-E-project/internal/messaging"
	"github.com/HoangTuan-git/action-E-project/internal/productapi"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log.Println("product-service starting...")
	var wg sync.WaitGroup

	httpPort := getEnv("HTTP_PORT", "3001")
	dbPath := getEnv("DB_PATH", "./products.db")
	migrationsPath := getEnv("MIGRATIONS_PATH", "./internal/catalog/migrations")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "localhost:9092")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	jwtSecret := getEnv("JWT_SECRET", "dev-secret")

	repo, err := catalog.NewRepository(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(migrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	cache := catalog.NewRedisCache(redisClient)
	catalogService := catalog.NewService(repo, cache)

	brokerClient := broker.New(broker.Config{
		Brokers: strings.Split(kafkaBrokers, ","),
		Topic:   messaging.OrdersTopic,
	})
	defer brokerClient.Close()

	pendingStore := intake.NewPendingStore(repo.DB())
	intakeService := intake.NewService(catalogService, pendingStore, brokerClient)

	// Retry publishes the broker never confirmed.
	republisher := intake.NewRepublisher(pendingStore, brokerClient)
	republisherCtx, republisherCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		republisher.Run(republisherCtx)
	}()

	issuer := authtoken.NewIssuer(jwtSecret, time.Hour)
	handler := productapi.NewHandler(catalogService, intakeService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Mount("/products", handler.Routes(issuer))

	srv := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Product service listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down product service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	republisherCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Println("Republisher stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("Republisher didn't stop in time")
	}

	log.Println("Product service stopped")
}

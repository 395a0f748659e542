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

	"github.com/HoangTuan-git/action-E-project/internal/gateway"
)

type Config struct {
	HTTPPort        string
	Gateway         gateway.Config
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "3003"),
		Gateway: gateway.Config{
			AuthServiceURL:    getEnv("AUTH_SERVICE_URL", "http://localhost:3000"),
			ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", "http://localhost:3001"),
			OrdersServiceURL:  getEnv("ORDERS_SERVICE_URL", "http://localhost:3002"),
			RequestTimeout:    30 * time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	r, err := gateway.NewRouter(cfg.Gateway)
	if err != nil {
		log.Fatalf("Failed to build gateway router: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API Gateway starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}

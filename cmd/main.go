// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/riverfold/event-registration/internal/config"
	"github.com/riverfold/event-registration/internal/database"
	"github.com/riverfold/event-registration/internal/handler"
	"github.com/riverfold/event-registration/internal/notification"
	"github.com/riverfold/event-registration/internal/repository"
	"github.com/riverfold/event-registration/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		slog.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	regSvc := service.NewRegistrationService(eventRepo, regRepo)
	regHandler := handler.NewRegistrationHandler(regSvc)

	// Notification delivery runs beside the request path; it drains the
	// outbox written by admission and cancellation transactions.
	var sink notification.Sink = notification.LogSink{}
	if cfg.NotificationURL != "" {
		sink = notification.NewHTTPSink(cfg.NotificationURL)
	}
	dispatcher := notification.NewDispatcher(outboxRepo, sink, 5*time.Second)
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)

	r.Route("/events/{id}", func(r chi.Router) {
		r.Use(handler.Auth(cfg.JWTSecret))
		r.Get("/registration", regHandler.Status)
		r.Post("/registration", regHandler.Register)
		r.Delete("/registration", regHandler.Cancel)
		r.Get("/registrations", regHandler.ListRegistrations)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	stopDispatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

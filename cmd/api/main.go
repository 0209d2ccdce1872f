// Package main is the entry point for the API server.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/booking"
	"github.com/capitalize-ai/concierge-platform/internal/channel"
	"github.com/capitalize-ai/concierge-platform/internal/config"
	"github.com/capitalize-ai/concierge-platform/internal/handler"
	"github.com/capitalize-ai/concierge-platform/internal/intent"
	"github.com/capitalize-ai/concierge-platform/internal/middleware"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/service"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/tracing"
)

const serviceName = "concierge-platform"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Backends
	st, err := setupStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	sessions, err := setupCache(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open session cache", zap.Error(err))
	}

	bus, err := setupBus(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect message bus", zap.Error(err))
	}
	defer bus.Close()

	// Classification and reply generation
	generator, llmStage := setupLLM(cfg, log)
	cascade := setupCascade(ctx, cfg, llmStage, log)
	retriever := setupRetriever(ctx, cfg, st, log)

	// Services
	conversationSvc := service.NewConversationService(st, sessions, bus.events, log)
	router := intent.NewDefaultRouter(intent.Deps{
		Bookings:      booking.NewService(st),
		Knowledge:     st,
		Conversations: st,
		Events:        bus.events,
		Retriever:     retriever,
		Generator:     generator,
		Logger:        log,
	})

	hub := channel.NewHub(cfg.WSWriteTimeout, log)
	sinks := channel.NewRegistry()
	sinks.Register(model.ChannelWeb, hub)
	if bus.outbound != nil {
		sinks.Register(model.ChannelSMS, bus.outbound)
		sinks.Register(model.ChannelWhatsApp, bus.outbound)
	}

	turnSvc := service.NewTurnService(service.TurnDeps{
		Conversations: conversationSvc,
		Store:         st,
		Classifier:    cascade,
		Router:        router,
		Sink:          sinks,
		Operators:     hub,
		Events:        bus.events,
		Logger:        log,
	})

	// Handlers
	checks := map[string]handler.Pinger{"store": st, "cache": sessions}
	if bus.nats != nil {
		checks["nats"] = bus.nats
	}
	healthHandler := handler.NewHealthHandler(checks)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	turnHandler := handler.NewTurnHandler(turnSvc, log)
	socketHandler := handler.NewSocketHandler(turnSvc, conversationSvc, hub, originPatterns(cfg.AllowedOrigins), log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// WebSockets
	r.With(middleware.IPRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).Get("/ws/chat", socketHandler.Chat)
	r.With(middleware.Auth(cfg.JWTSecret)).Get("/ws/operator", socketHandler.Operator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/turns", turnHandler.Create)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.Messages)
				r.Post("/close", conversationHandler.Close)
				r.Post("/handoff", conversationHandler.Handoff)
			})
		})

		r.With(middleware.RequireScope("tenant:admin")).Put("/tenant/settings", conversationHandler.UpdateSettings)
	})

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     r,
		ReadTimeout: cfg.ServerReadTimeout,
		// WriteTimeout would cut long-lived sockets; turns are bounded by
		// the per-stage classifier timeouts instead.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

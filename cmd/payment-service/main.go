package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-payments/internal/auth"
	"ms-payments/internal/cache"
	"ms-payments/internal/codes"
	"ms-payments/internal/config"
	"ms-payments/internal/gateway"
	"ms-payments/internal/kafka"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/order"
	orderapi "ms-payments/internal/order/api"
	orderdb "ms-payments/internal/order/db"
	"ms-payments/internal/recon"
	reconapi "ms-payments/internal/recon/api"
	ticketapi "ms-payments/internal/tickets/api"
	ticketdb "ms-payments/internal/tickets/db"
	tickets "ms-payments/internal/tickets/service"
)

// noopPublisher stands in for Kafka when dispatch is disabled. Paid
// orders are logged instead of streamed.
type noopPublisher struct {
	log *logger.Logger
}

func (p *noopPublisher) PublishOrderPaid(_ context.Context, event models.OrderPaidEvent) error {
	p.log.LogKafka("SKIP", "order-paid", fmt.Sprintf("dispatch disabled, order %s not streamed", event.Order.OrderNumber))
	return nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	orderdb.Migrate(bunDB)

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The status cache fails open, so a missing Redis only costs
		// extra gateway calls.
		log.Warn("CACHE", fmt.Sprintf("Redis unreachable at %s: %v", cfg.Redis.Addr, err))
	}

	// --- Kafka ---
	var publisher recon.PaidPublisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.PaidTopic}); err != nil {
			log.Fatal("KAFKA", fmt.Sprintf("Failed to ensure topics: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PaidTopic, log)
		defer producer.Close()
		publisher = producer
	} else {
		publisher = &noopPublisher{log: log}
	}

	// --- Stores and services ---
	orderStore := &orderdb.DB{Bun: bunDB}
	ticketStore := &ticketdb.DB{Bun: bunDB}
	codeStore := &codes.DB{Bun: bunDB}

	usageService := codes.NewUsageService(codeStore, log)
	ticketService := tickets.NewTicketService(ticketStore, orderStore, usageService, log)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.ServerKey,
		cfg.Gateway.ClientTimeout,
		cfg.Gateway.TokenValidity,
		log,
	)

	statusCache := cache.NewStatusCache(redisClient, cfg.Redis.StatusTTL, log)
	pipeline := recon.NewPipeline(ticketStore, usageService, codeStore, publisher, log)
	reconService := recon.NewService(
		orderStore,
		gatewayClient,
		pipeline,
		statusCache,
		cfg.Gateway.ServerKey,
		cfg.Gateway.TokenValidity,
		cfg.Sweeper.NotFoundGrace,
		log,
	)
	sweeper := recon.NewSweeper(orderStore, reconService, cfg.Sweeper.ExpiryThreshold, log)

	orderService := order.NewOrderService(
		orderStore, codeStore, ticketService, gatewayClient,
		cfg.Gateway.TokenValidity, log,
	)

	orderHandler := &orderapi.Handler{OrderService: orderService, Logger: log}
	ticketHandler := &ticketapi.Handler{
		Tickets:   ticketService,
		Orders:    orderService,
		AdminRole: cfg.Auth.AdminRole,
		Logger:    log,
	}
	reconHandler := &reconapi.Handler{
		Recon:        reconService,
		OrderService: orderService,
		Usage:        usageService,
		Codes:        codeStore,
		Sweeper:      sweeper,
		AdminRole:    cfg.Auth.AdminRole,
		Logger:       log,
	}

	// --- Router ---
	r := chi.NewRouter()

	// The gateway cannot authenticate; the webhook is guarded by its
	// signature instead.
	r.Post("/api/v1/payments/notifications", reconHandler.Notification)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))

		r.Post("/api/v1/orders", orderHandler.CreateOrder)
		r.Post("/api/v1/orders/{orderNumber}/token", orderHandler.PaymentToken)
		r.Get("/api/v1/orders/{orderNumber}/status", reconHandler.OrderStatus)
		r.Get("/api/v1/tickets/by-order/{orderId}", ticketHandler.OrderTickets)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(cfg.Auth.AdminRole))

			r.Post("/api/v1/admin/orders/{orderNumber}/status", reconHandler.AdminSetStatus)
			r.Post("/api/v1/admin/orders/{orderNumber}/lock", reconHandler.AdminLock)
			r.Post("/api/v1/admin/orders/{orderNumber}/unlock", reconHandler.AdminUnlock)
			r.Post("/api/v1/admin/referral-codes/{code}/recalculate", reconHandler.RecalculateReferral)
			r.Post("/api/v1/admin/codes/recalculate", reconHandler.RecalculateAll)
			r.Post("/api/v1/admin/sweep", reconHandler.Sweep)
			r.Post("/api/v1/admin/tickets/{ticketId}/use", ticketHandler.MarkUsed)
			r.Delete("/api/v1/admin/tickets/{ticketId}", ticketHandler.CancelTicket)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Payment service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Forced shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}

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
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-groupbuy/internal/auth"
	"ms-groupbuy/internal/config"
	"ms-groupbuy/internal/database/migrations"
	"ms-groupbuy/internal/groupbuy"
	groupbuy_db "ms-groupbuy/internal/groupbuy/db"
	"ms-groupbuy/internal/groupbuy/groupbuy_api"
	"ms-groupbuy/internal/kafka"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/notify"
	"ms-groupbuy/internal/payment"
	"ms-groupbuy/internal/scan"
	scan_db "ms-groupbuy/internal/scan/db"
	"ms-groupbuy/internal/scan/scan_api"
	"ms-groupbuy/internal/tickets"
	ticket_db "ms-groupbuy/internal/tickets/db"
	"ms-groupbuy/internal/tickets/ticket_api"
)

const scannerRole = "scanner"

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

// runSweeper expires overdue group buys on a fixed interval. The Redis lease
// keeps multiple replicas from sweeping the same batch.
func runSweeper(ctx context.Context, svc *groupbuy.Service, lock *groupbuy.SweepLock, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := lock.TryAcquire(ctx)
			if err != nil {
				log.Error("SWEEPER", fmt.Sprintf("Failed to acquire sweep lock: %v", err))
				continue
			}
			if !held {
				continue
			}

			if _, err := svc.SweepExpired(ctx); err != nil {
				log.Error("SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
			}
			if err := lock.Release(ctx); err != nil {
				log.Error("SWEEPER", fmt.Sprintf("Failed to release sweep lock: %v", err))
			}
		}
	}
}

func main() {
	log := logger.NewLogger("groupbuy-service")
	defer log.Close()

	log.Info("APP", "Starting Group Buy Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.Info("DATABASE", "Migrations applied")

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		log.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.GroupBuyCreated,
			cfg.Kafka.Topics.GroupBuyCompleted,
			cfg.Kafka.Topics.GroupBuyExpired,
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.TicketScanned,
			cfg.Kafka.Topics.Notifications,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	stripeService, err := payment.NewStripeService(log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Failed to initialize Stripe: %v", err))
	}

	var pool *notify.Pool
	var publisher tickets.EventPublisher
	var deliverer tickets.CredentialDeliverer
	var notifier groupbuy.Notifier
	if producer != nil {
		pool = notify.NewPool(producer, cfg.Kafka.Topics.Notifications, cfg.Notify.Workers, cfg.Notify.QueueSize, log)
		publisher = producer
		deliverer = pool
		notifier = pool
	}

	ticketService := tickets.NewService(
		&ticket_db.DB{Bun: bunDB},
		stripeService,
		publisher,
		deliverer,
		log,
		cfg.Kafka.Topics,
	)

	var gbPublisher groupbuy.EventPublisher
	if producer != nil {
		gbPublisher = producer
	}
	groupBuyService := groupbuy.NewService(
		&groupbuy_db.DB{Bun: bunDB},
		ticketService,
		stripeService,
		stripeService,
		notifier,
		gbPublisher,
		log,
		cfg.Kafka.Topics,
		cfg.GroupBuy.TTL,
	)

	var scanPublisher scan.EventPublisher
	if producer != nil {
		scanPublisher = producer
	}
	scanService := scan.NewService(&scan_db.DB{Bun: bunDB}, scanPublisher, log, cfg.Kafka.Topics)

	groupBuyHandler := groupbuy_api.NewHandler(groupBuyService, log)
	ticketHandler := ticket_api.NewHandler(ticketService, log)
	scanHandler := scan_api.NewHandler(scanService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			groupBuyHandler.RegisterRoutes(r)
			log.Info("ROUTER", "Group buy routes registered under /api/groupbuy")

			ticketHandler.RegisterRoutes(r)
			log.Info("ROUTER", "Ticket routes registered under /api/tickets")

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(scannerRole))
				scanHandler.RegisterRoutes(r)
			})
			log.Info("ROUTER", "Scan routes registered under /api/scan (scanner role required)")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepLock := groupbuy.NewSweepLock(redisClient, uuid.New().String())
	go runSweeper(ctx, groupBuyService, sweepLock, cfg.GroupBuy.SweepInterval, log)
	log.Info("SWEEPER", fmt.Sprintf("Expiration sweeper started (interval %s)", cfg.GroupBuy.SweepInterval))

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Group Buy Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Group Buy Service shutdown complete")
	}

	if pool != nil {
		pool.Close()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/config"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/events"
	"ms-checkout/internal/kafka"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/notify"
	"ms-checkout/internal/order"
	"ms-checkout/internal/order/db"
	"ms-checkout/internal/order/discount"
	"ms-checkout/internal/order/giftcard"
	orderkafka "ms-checkout/internal/order/kafka"
	"ms-checkout/internal/order/order_api"
	rediswrap "ms-checkout/internal/order/redis"
	handlers "ms-checkout/internal/payment/handler"
	"ms-checkout/internal/payment/services"
	"ms-checkout/internal/pricing"
	"ms-checkout/internal/tickets/qr"
	tickets "ms-checkout/internal/tickets/service"
	"ms-checkout/internal/tickets/template"
	"ms-checkout/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func openLedger(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) *db.DB {
	if cfg.Driver == "sqlite" {
		log.Warn("DATABASE", fmt.Sprintf("Using SQLite ledger at %s", cfg.SQLitePath))
		ledger, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to open SQLite: %v", err))
		}
		return ledger
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < cfg.ConnectTries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, cfg.ConnectTries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < cfg.ConnectTries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", cfg.ConnectTries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := migrations.NewRunner(sqldb, log).Up(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Schema migration failed: %v", err))
	}

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return &db.DB{Bun: bun.NewDB(sqldb, pgdialect.New())}
}

func connectRedis(ctx context.Context, addr string, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		// The lock is only a contention guard; confirmation stays correct without it.
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, order locks degrade to no-ops: %v", addr, err))
		return client
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", addr))
	return client
}

func identityVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) auth.Verifier {
	if cfg.Auth.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", err.Error())
		}
		log.Info("AUTH", fmt.Sprintf("Verifying caller tokens against %s", cfg.Auth.OIDCIssuer))
		return verifier
	}
	if cfg.Environment != "development" {
		log.Fatal("CONFIG", "OIDC_ISSUER not set")
	}
	log.Warn("AUTH", "OIDC_ISSUER not set, token signatures are NOT verified (development only)")
	return auth.UnverifiedVerifier{}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("CONFIG: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger("ms-checkout", cfg.Log.Dir)
	log.SetLevel(cfg.Log.Level)
	defer log.Close()

	log.Info("APP", "Starting checkout service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger := openLedger(ctx, cfg.Database, log)
	defer ledger.Bun.Close()

	redisClient := connectRedis(ctx, cfg.Redis.Addr, log)
	defer redisClient.Close()
	lock := rediswrap.NewOrderLock(redisClient, cfg.Redis.LockTTL)

	observers := events.Multi{events.LogObserver{Logger: log}}
	var mailer notify.Dispatcher = notify.LogDispatcher{Logger: log}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		topics := []string{cfg.Kafka.Topics.OrderEvents, cfg.Kafka.Topics.EmailOutbound}
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopicsExist(topicCtx, cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		cancel()

		observers = append(observers, orderkafka.NewEventPublisher(producer, cfg.Kafka.Topics.OrderEvents, log))
		mailer = notify.NewKafkaDispatcher(producer, cfg.Kafka.Topics.EmailOutbound, log)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are logged and emails are not delivered")
	}

	stripe, err := services.NewStripeService(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", err.Error())
	}

	var pdf *template.TicketPDFGenerator
	if cfg.Tickets.FontPath != "" {
		pdf = template.NewTicketPDFGenerator(cfg.Tickets.FontPath)
	}
	renderer := template.NewRenderer(qr.NewQRGenerator(cfg.Tickets.QRSecret), pdf, log)

	confirmer := order.NewConfirmer(
		ledger,
		lock,
		tickets.NewAllocator(cfg.Checkout.DefaultEventCapacity, log),
		giftcard.NewSplitter(cfg.Checkout.GiftCardValidity, log),
		renderer,
		mailer,
		observers,
		cfg.Checkout.LoyaltyPointsPerCHF,
		cfg.Checkout.NotificationTimeout,
		log,
	)

	orderService := order.NewOrderService(
		ledger,
		stripe,
		confirmer,
		pricing.NewEngine(pricing.PolicyFromConfig(cfg.Checkout)),
		discount.NewResolver(ledger, log),
		observers,
		order.SessionConfig{BaseURL: cfg.Checkout.BaseURL, Currency: cfg.Stripe.Currency},
		log,
	)
	reconciler := order.NewReconciler(ledger, stripe, confirmer, observers, log)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	webhookRouter := handlers.NewRouter(handlers.NewStripeHandler(reconciler, log))

	router := order_api.NewRouter(order_api.NewHandler(orderService, log), order_api.Options{
		Identity:       auth.OptionalIdentity(identityVerifier(ctx, cfg, log), log),
		AllowedOrigins: cfg.Server.CORSOrigins,
		Webhook:        webhookRouter,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workerDone := make(chan struct{})
	if cfg.Reconcile.Enabled {
		sweeper := worker.NewReconciliationWorker(ledger, stripe, reconciler, lock, cfg.Reconcile, log)
		go func() {
			defer close(workerDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Checkout service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	<-workerDone
	confirmer.Wait()
	log.Info("APP", "✅ Checkout service shutdown complete")
}

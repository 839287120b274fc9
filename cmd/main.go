/**
 * @description
 * This is the main entry point for the subscription-service. It is responsible
 * for initializing all components of the service, including configuration, the
 * database connection, the ledger service client, the Redis-backed accounts
 * cache, the message broker, the cron scheduler and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/ledgerclient, pkg/rabbitmq: External service communication.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/esnpolimi/subscription-service/internal/api"
	"github.com/esnpolimi/subscription-service/internal/app"
	"github.com/esnpolimi/subscription-service/internal/config"
	"github.com/esnpolimi/subscription-service/internal/store"
	"github.com/esnpolimi/subscription-service/pkg/ledgerclient"
	rmrabbit "github.com/esnpolimi/subscription-service/pkg/rabbitmq"
)

func main() {
	// Load the optional .env file before reading the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.LedgerServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger service url must be configured\" env=LEDGER_SERVICE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting subscription-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the ledger service.
	ledgerClient := ledgerclient.NewClient(cfg.LedgerServiceURL, cfg.LedgerInternalAPIKey)

	// Optional Redis for the ledger accounts cache; the service degrades to
	// direct ledger calls when it is absent.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; accounts cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; accounts cache disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; accounts cache disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	accountsCache := app.NewAccountsCache(ledgerClient, redisClient, time.Duration(cfg.AccountsCacheTTLSeconds)*time.Second)

	// Initialize the core application service with its dependencies.
	subscriptionService := app.NewService(repository, ledgerClient, producer, accountsCache)

	// Account status events from the ledger service invalidate the cache.
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; accounts cache relies on TTL and cron\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		accountBindings := map[string]func([]byte) bool{
			"account.status.*": func([]byte) bool {
				subscriptionService.InvalidateAccounts(context.Background())
				return true
			},
		}
		if err := rabbitConsumer.ConsumeWithBindings(rmrabbit.Exchange, cfg.AccountEventQueue, accountBindings); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"account consumer start failed\" err=%v", err)
		}
	}

	// Periodic accounts refresh keeps closed accounts from being offered even
	// when no broker event made it through.
	scheduler := app.NewScheduler(accountsCache, slog.Default(), cfg.AccountsRefreshSchedule)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers.
	subscriptionHandlers := api.NewSubscriptionHandlers(subscriptionService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.SubscriptionRoutes(subscriptionHandlers, cfg.AuthJWKSURL, cfg.AllowedOriginList()))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

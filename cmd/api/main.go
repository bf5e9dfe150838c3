package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/transconnect/booking-engine/internal/adapters/crdb"
	mongoadapter "github.com/transconnect/booking-engine/internal/adapters/mongo"
	redisadapter "github.com/transconnect/booking-engine/internal/adapters/redis"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/config"
	httphandler "github.com/transconnect/booking-engine/internal/http"
	"github.com/transconnect/booking-engine/internal/idempotency"
	"github.com/transconnect/booking-engine/internal/observability"
	"github.com/transconnect/booking-engine/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger("booking-api")

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("booking"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	replay := redisadapter.NewReplay(redisClient)
	idemp := idempotency.NewIdempotency(replay, cfg.ReplayTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	coord := booking.NewCoordinator(repo, repo, logger,
		booking.WithRetryLimit(cfg.ReserveRetryLimit),
		booking.WithBackoff(cfg.ReserveBackoff),
		booking.WithEventSink(repo),
		booking.WithAuditLogger(audit),
	)
	search := booking.NewSearchService(repo)

	handlers := httphandler.NewHandlers(coord, search, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

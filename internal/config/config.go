package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string
	ListenAddr   string

	// Booking coordinator knobs.
	ReserveRetryLimit int
	ReserveBackoff    time.Duration

	// TTL for the cached HTTP replay of an idempotent response.
	ReplayTTL time.Duration

	// Poll intervals for the background workers.
	OutboxInterval  time.Duration
	SweeperInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	retryLimit, _ := strconv.Atoi(os.Getenv("RESERVE_RETRY_LIMIT"))
	if retryLimit == 0 {
		retryLimit = 5
	}

	backoff, _ := time.ParseDuration(os.Getenv("RESERVE_BACKOFF"))
	if backoff == 0 {
		backoff = 10 * time.Millisecond
	}

	replayTTL, _ := time.ParseDuration(os.Getenv("REPLAY_TTL"))
	if replayTTL == 0 {
		replayTTL = time.Hour
	}

	outboxInterval, _ := time.ParseDuration(os.Getenv("OUTBOX_INTERVAL"))
	if outboxInterval == 0 {
		outboxInterval = 5 * time.Second
	}

	sweeperInterval, _ := time.ParseDuration(os.Getenv("SWEEPER_INTERVAL"))
	if sweeperInterval == 0 {
		sweeperInterval = time.Minute
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		CRDBDSN:           os.Getenv("CRDB_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ListenAddr:        listenAddr,
		ReserveRetryLimit: retryLimit,
		ReserveBackoff:    backoff,
		ReplayTTL:         replayTTL,
		OutboxInterval:    outboxInterval,
		SweeperInterval:   sweeperInterval,
	}, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transconnect/booking-engine/internal/adapters/crdb"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/config"
	"github.com/transconnect/booking-engine/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger("trip-sweeper")

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	coord := booking.NewCoordinator(repo, repo, logger, booking.WithEventSink(repo))
	worker := NewSweeper(repo, coord, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweeperInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown trip sweeper")
}

// Sweeper releases the confirmed reservations left behind on trips the
// operations process cancelled out of band.
type Sweeper struct {
	repo   *crdb.Repository
	coord  *booking.Coordinator
	logger observability.Logger
}

func NewSweeper(repo *crdb.Repository, coord *booking.Coordinator, logger observability.Logger) *Sweeper {
	return &Sweeper{repo: repo, coord: coord, logger: logger}
}

func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tripIDs, err := w.repo.TripsNeedingRelease(ctx)
			if err != nil {
				w.logger.Error("failed to list cancelled trips: ", err)
				continue
			}
			for _, tripID := range tripIDs {
				if err := w.sweepWithRetry(ctx, tripID); err != nil {
					w.logger.WithField("trip_id", tripID.String()).Error("failed to sweep trip after retries: ", err)
				}
			}
		}
	}
}

func (w *Sweeper) sweepWithRetry(ctx context.Context, tripID uuid.UUID) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		released, err := w.coord.CancelTrip(ctx, tripID)
		if err == nil {
			w.logger.WithField("trip_id", tripID.String()).Info("released reservations: ", released)
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}

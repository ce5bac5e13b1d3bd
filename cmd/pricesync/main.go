package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/config"
	kafkax "github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/kafka"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

// The pricesync worker follows catalog price events and overwrites the
// cached price facts, so checkout sees a new price as soon as the event
// lands instead of waiting out the TTL. Losing this worker (or redis) only
// widens staleness back to the TTL bound.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-pricesync").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)

	h := &pricing.SyncHandler{Cache: cache, TTL: cfg.PriceTTL, Log: log}

	// Consumer
	group := getenv("PRICESYNC_GROUP", "pricesync")
	workers := mustAtoi(os.Getenv("PRICESYNC_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, pricing.TopicPriceUpdated, workers, log)

	go func() {
		log.Info().
			Str("group", group).
			Str("topic", pricing.TopicPriceUpdated).
			Int("workers", workers).
			Msg("price sync consumer started")
		if err := cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			return h.HandleMessage(ctx, m.Value)
		}); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

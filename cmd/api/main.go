package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/catalog"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/checkout"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/compliance"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/config"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/httpx"
	kafkax "github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/kafka"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/metrics"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/postgres"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	// Redis, wrapped so an outage degrades to store reads instead of failing.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)

	m := metrics.New()

	// Kafka producers, one per topic.
	prodCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prodCreated.Start(ctx)
	prodCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024, log)
	prodCancelled.Start(ctx)

	// Repos & pipeline
	orderRepo := orders.NewRepo(db)
	catalogRepo := &catalog.Repo{DB: db}

	svc := &checkout.Service{
		Carts:   &carts.Repo{DB: db},
		Orders:  orderRepo,
		Catalog: catalogRepo,
		Pricing: &pricing.Reconciler{
			Cache:     cache,
			Catalog:   catalogRepo,
			Metrics:   m,
			TTL:       cfg.PriceTTL,
			Tolerance: cfg.PriceTolerance,
		},
		Compliance: &compliance.Engine{
			Profiles:     &users.Repo{DB: db},
			Locations:    catalogRepo,
			Rules:        &compliance.RulesRepo{DB: db},
			History:      orderRepo,
			Doses:        catalogRepo,
			CountPending: cfg.DoseCountPending,
			Log:          log,
		},
		Resolver:          &checkout.Resolver{Orders: orderRepo, Cache: cache, TTL: cfg.IdempotencyTTL},
		Cache:             cache,
		ProducerCreated:   prodCreated,
		ProducerCancelled: prodCancelled,
		Metrics:           m,
		Log:               log,
		Service:           cfg.ServiceName,
		TaxRate:           cfg.TaxRate,
		IdemTTL:           cfg.IdempotencyTTL,
	}

	router := httpx.NewRouter()
	h := &httpx.CheckoutHandler{Checkout: svc, Log: log}
	router.Group(func(r chi.Router) {
		r.Use(httpx.Auth)
		r.Use(httpx.RateLimit(cache, cfg.RateLimitPerMin, log))
		h.Register(r)
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prodCreated.Close() // close inboxes -> flush & close writers
	prodCancelled.Close()
	cancel() // stop producer loops
	prodCreated.WaitClosed()
	prodCancelled.WaitClosed()
}

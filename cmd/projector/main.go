package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders.git/internal/config"
	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/projector"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-projector").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-projector",
		Log:         log,
	}

	createdCons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderCreated, cfg.ProjectorWorkers, log)
	statusCons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderStatusChanged, cfg.ProjectorWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return createdCons.Start(gctx, svc.HandleOrderCreated) })
	g.Go(func() error { return statusCons.Start(gctx, svc.HandleStatusChanged) })

	log.Info().Str("group", cfg.ProjectorGroup).Int("workers", cfg.ProjectorWorkers).Msg("projector started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down projector...")
		cancel()
	case <-gctx.Done():
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/bootstrap"
	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/Domenick1991/bookingsaga/internal/logger"
	"github.com/Domenick1991/bookingsaga/internal/notify"
	"github.com/Domenick1991/bookingsaga/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg := logger.Must(cfg.Log)
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, logg, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Fatal("build components", zap.Error(err))
	}
	defer components.Close()

	g, ctx := errgroup.WithContext(ctx)

	sweeper := worker.NewExpirySweeper(components.Bookings, cfg.Worker.SweepInterval.Std(), logg)
	g.Go(func() error { return sweeper.Run(ctx) })

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logg.Named("consumer"))
		defer consumer.Close()

		notifier := notify.NewNotifier(logg.Named("notify"))
		g.Go(func() error { return consumer.Consume(ctx, notifier.Send) })
	}

	if err := g.Wait(); err != nil {
		logg.Fatal("worker error", zap.Error(err))
	}
	logg.Info("worker stopped")
}

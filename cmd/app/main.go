package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/bootstrap"
	"github.com/Domenick1991/bookingsaga/internal/logger"
	"github.com/Domenick1991/bookingsaga/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := bootstrap.Build(ctx, cfg, logg, reg)
	if err != nil {
		logg.Fatal("build components", zap.Error(err))
	}
	defer components.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.Run(ctx, cfg, bootstrap.Dependencies{
			Bookings: components.Bookings,
			Logger:   logg,
			Gatherer: reg,
			Checks:   components.Checks,
		})
	})

	if cfg.Worker.Embedded || cfg.Storage.Driver == "memory" {
		sweeper := worker.NewExpirySweeper(components.Bookings, cfg.Worker.SweepInterval.Std(), logg)
		g.Go(func() error { return sweeper.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		logg.Fatal("server error", zap.Error(err))
	}
	logg.Info("server stopped")
}

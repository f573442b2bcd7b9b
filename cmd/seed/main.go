package main

import (
	"context"
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/app"
	"github.com/vladislavdragonenkov/orders-api/internal/seed"
)

const defaultTimeout = time.Minute

func main() {
	configPath := flag.String("config", app.ConfigPathFromEnv(), "path to YAML config file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	closer, err := app.ConfigureLogger(log.StandardLogger(), cfg)
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer closer.Close()

	logger := log.WithField("component", "seed")
	if cfg.StorageDriver == app.StorageDriverMemory {
		logger.Warn("storage driver is memory, seeded data lives only until the process exits")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("seed failed")
		cancel()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config, logger *log.Entry) error {
	deps, closeFn, err := app.OpenServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	_, err = seed.Run(ctx, deps.Orders, deps.Products, logger)
	return err
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/app"
	"github.com/vladislavdragonenkov/orders-api/internal/version"
)

// resolveConfigPath выбирает путь к YAML: флаг -config важнее ORDERS_CONFIG_FILE.
func resolveConfigPath(args []string, envPath string) (string, error) {
	fs := flag.NewFlagSet("order-service", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parse flags: %w", err)
	}
	if *path != "" {
		return *path, nil
	}
	return envPath, nil
}

func main() {
	path, err := resolveConfigPath(os.Args[1:], app.ConfigPathFromEnv())
	if err != nil {
		log.WithError(err).Fatal("некорректные аргументы")
	}

	cfg, err := app.LoadConfig(path)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	closer, err := app.ConfigureLogger(log.StandardLogger(), cfg)
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем orders-api")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("приложение завершилось с ошибкой")
		closer.Close()
		os.Exit(1)
	}

	log.Info("orders-api остановлен")
}

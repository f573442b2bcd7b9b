package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders-api/internal/health"
	"github.com/vladislavdragonenkov/orders-api/internal/metrics"
	httpapi "github.com/vladislavdragonenkov/orders-api/internal/transport/http"
	"github.com/vladislavdragonenkov/orders-api/internal/version"
)

// Run поднимает HTTP API, ops-серверы (метрики, health, gRPC health) и фоновые
// воркеры и блокируется до отмены ctx или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	orderMetrics := metrics.NewOrderMetrics()
	rt, err := initRuntimeDependencies(ctx, cfg, logger, orderMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	stream, err := openEventStream(cfg, logger)
	if err != nil {
		logger.Warn("continuing without kafka, order events stay in outbox")
	}
	defer stream.close(logger)

	deps := NewDependencies(cfg, rt, stream.producer, orderMetrics, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(
		httpapi.RouterConfig{
			APIVersion:  cfg.APIVersion,
			Logger:      logger.WithField("layer", "http"),
			Idempotency: deps.Guard,
		},
		httpapi.NewOrderHandler(deps.Orders, logger.WithField("layer", "http-orders")),
		httpapi.NewProductHandler(deps.Products, logger.WithField("layer", "http-products")),
	)
	apiSrv := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	healthHandler := newHealthHandler(cfg, rt, stream.enabled())

	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	// Reflection нужен grpcurl для ручных проверок health.
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http api %s: %w", cfg.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	startMetricsServer(gctx, cfg.MetricsAddr, logger, healthHandler)

	g.Go(func() error {
		logger.Infof("HTTP API слушает %s (/api/v%d)", apiLis.Addr(), cfg.APIVersion)
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return deps.Cleanup.Run(gctx)
	})
	if deps.Relay != nil {
		g.Go(func() error {
			return deps.Relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newHealthHandler регистрирует проверки хранилища, кэша и backlog outbox.
func newHealthHandler(cfg Config, rt *runtimeDependencies, withRelay bool) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	h.RegisterChecker("storage", rt.storageChecker)
	if rt.cacheChecker != nil {
		h.RegisterChecker("cache", rt.cacheChecker)
	}
	if withRelay && cfg.OutboxMaxPending > 0 {
		h.RegisterChecker("outbox", outboxBacklogChecker(rt.outboxRepo, cfg.OutboxMaxPending))
	}
	return h
}

func outboxBacklogChecker(repo domain.OutboxRepository, maxPending int) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// registerGRPCMetrics регистрирует метрики gRPC или переиспользует уже
// зарегистрированные (повторный Run в одном процессе, тесты).
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// startMetricsServer запускает ops HTTP: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// stopGRPC дожидается завершения активных RPC не дольше timeout.
func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

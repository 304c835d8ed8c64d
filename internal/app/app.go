package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// GRPCServiceName: имя сервиса в gRPC health protocol.
const GRPCServiceName = "storefront"

const healthSyncInterval = 5 * time.Second

var errKafkaUnavailable = errors.New("kafka producer is not initialized")

// App — собранный сервис: хранилище, сервисы, HTTP API, метрики и фоновые воркеры.
type App struct {
	cfg      Config
	logger   *log.Entry
	registry *prometheus.Registry
	deps     *Dependencies
	producer *kafka.Producer

	Orders  *ordering.Engine
	Catalog *catalog.Service
	Users   *users.Service

	router     *gin.Engine
	health     *healthcheck.Handler
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
	outbox     *outbox.Worker
	cleanup    *idempotency.CleanupWorker

	closeOnce sync.Once
}

// New собирает приложение по конфигурации. Сетевые порты не открываются до Run.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.WithField("component", "app")
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		deps:     deps,
	}

	a.connectKafka()

	a.Orders = ordering.NewEngine(deps.Products, deps.Orders, deps.Placer,
		ordering.WithLogger(log.WithField("component", "ordering")),
		ordering.WithMetrics(metrics.NewPlacementMetricsWith(registry)),
		ordering.WithLocation(cfg.Location()),
	)
	a.Catalog = catalog.NewService(deps.Products, deps.Images, log.WithField("component", "catalog"))
	a.Users = users.NewService(deps.Users, users.WithLogger(log.WithField("component", "users")))

	a.router = httpapi.NewRouter(httpapi.Deps{
		Orders:      a.Orders,
		Catalog:     a.Catalog,
		Users:       a.Users,
		Idempotency: idempotency.NewGuard(deps.Idempotency, cfg.IdempotencyTTL, log.WithField("component", "idempotency")),
		Metrics:     metrics.NewHTTPMetrics(registry),
		Logger:      log.WithField("component", "http"),
		MaxPageSize: cfg.MaxPageSize,
	})

	a.health = healthcheck.NewHandler(version.Get().Version)
	a.health.Register("storage", deps.Ping)
	if cfg.KafkaEnabled() {
		producer := a.producer
		a.health.RegisterOptional("kafka", func(context.Context) error {
			if producer == nil {
				return errKafkaUnavailable
			}
			return nil
		})
	}

	a.initGRPC()
	a.initWorkers()
	return a, nil
}

// connectKafka поднимает producer при настроенных брокерах. Ошибка не фатальна:
// заказы продолжают приниматься, события ждут в outbox, а /readyz показывает degraded.
func (a *App) connectKafka() {
	if !a.cfg.KafkaEnabled() {
		return
	}
	entry := a.logger.WithField("brokers", a.cfg.KafkaBrokers)
	producer, err := kafka.NewProducer(a.cfg.KafkaBrokers, log.WithField("component", "kafka-producer"))
	if err != nil {
		entry.WithError(err).Warn("kafka недоступна, outbox worker не запускается")
		return
	}
	entry.Info("kafka producer initialized")
	a.producer = producer
}

func (a *App) initGRPC() {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := a.registry.Register(grpcMetrics); err != nil {
		a.logger.WithError(err).Warn("failed to register grpc metrics")
	}

	a.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	a.grpcHealth = grpchealth.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth)
	reflection.Register(a.grpcServer)
	grpcMetrics.InitializeMetrics(a.grpcServer)
}

func (a *App) initWorkers() {
	cfg := a.cfg

	a.cleanup = idempotency.NewCleanupWorker(a.deps.Idempotency,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(a.registry)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	if a.producer == nil {
		a.logger.Info("outbox worker disabled: kafka is not configured")
		return
	}
	a.outbox = outbox.NewWorker(a.deps.Outbox, kafka.NewOutboxPublisher(a.producer, cfg.KafkaTopic),
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(a.registry)),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(a.producer, cfg.KafkaDLQTopic)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// Handler возвращает HTTP API.
func (a *App) Handler() http.Handler {
	return a.router
}

// OpsHandler возвращает обработчик /metrics, /healthz, /readyz и /livez.
func (a *App) OpsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.health.Mount(mux)
	return mux
}

// Run обслуживает HTTP API, метрики и gRPC health до отмены ctx, затем
// останавливает серверы и дожидается воркеров.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return err
	}

	apiSrv := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	opsSrv := startOpsServer(a.cfg.MetricsAddr, a.OpsHandler(), a.logger)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := apiSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workersCtx)
		}()
	}
	start(a.syncGRPCHealth)
	start(a.cleanup.Run)
	if a.outbox != nil {
		start(a.outbox.Run)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		a.logger.WithError(runErr).Error("server failed")
	}

	a.grpcHealth.Shutdown()
	stopWorkers()
	a.stopGRPC()
	shutdownHTTP(apiSrv, a.cfg.ShutdownTimeout, a.logger)
	shutdownHTTP(opsSrv, a.cfg.ShutdownTimeout, a.logger)
	wg.Wait()

	return runErr
}

// syncGRPCHealth переносит результат health checks в gRPC health protocol.
func (a *App) syncGRPCHealth(ctx context.Context) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if a.health.Run(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		a.grpcHealth.SetServingStatus("", status)
		a.grpcHealth.SetServingStatus(GRPCServiceName, status)
	}

	update()
	ticker := time.NewTicker(healthSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func (a *App) stopGRPC() {
	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(a.cfg.ShutdownTimeout):
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		a.grpcServer.Stop()
	}
}

// Close закрывает Kafka producer и хранилище. Повторные вызовы ничего не делают.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.producer != nil {
			if perr := a.producer.Close(); perr != nil {
				a.logger.WithError(perr).Warn("failed to close kafka producer")
			}
		}
		err = a.deps.Close()
	})
	return err
}

// Run собирает приложение, обслуживает запросы до отмены ctx и освобождает ресурсы.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.WithError(err).Warn("close resources")
		}
	}()
	return a.Run(ctx)
}

// startOpsServer запускает HTTP-сервер метрик и health checks.
func startOpsServer(addr string, handler http.Handler, logger *log.Entry) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

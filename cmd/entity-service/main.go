package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"entitystore/adapter"
	"entitystore/config"
	"entitystore/events/rabbitmq"
	"entitystore/events/sqs"
	"entitystore/handler"
	"entitystore/handler/platforms"
	"entitystore/internal/worker"
	"entitystore/observability"
	"entitystore/observability/metrics"
)

func main() {
	startTime := time.Now()

	cfg := loadConfiguration()
	obs := initializeObservability(cfg)
	defer obs.Close()

	sink := initializeMetricsExport(cfg, obs)

	logStartup(cfg, obs)

	entities := initializeAdapter(cfg, obs)
	app := buildApplication(cfg, obs, entities)

	startApplication(cfg, obs, app, entities, sink, startTime)
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() *config.Config {
	cfgProvider := config.GetProvider()
	cfgProvider.MustLoad()
	return cfgProvider.MustGet()
}

func initializeObservability(cfg *config.Config) *observability.DefaultProvider {
	return observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
}

// initializeMetricsExport switches the provider to CloudWatch when configured.
// It returns nil for the Prometheus backend.
func initializeMetricsExport(cfg *config.Config, obs *observability.DefaultProvider) *metrics.CloudWatchSink {
	if cfg.Metrics.Backend != "cloudwatch" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Metrics.CloudWatchRegion),
	)
	if err != nil {
		log.Fatalf("Failed to load AWS config for metrics: %v", err)
	}

	sink := metrics.NewCloudWatchSink(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.CloudWatchNamespace)
	obs.UseCloudWatch(sink)
	return sink
}

func logStartup(cfg *config.Config, obs observability.Provider) {
	obs.Logger("main").Info(context.Background(), "Starting application", observability.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.Version,
		"environment": cfg.Environment,
		"provider":    cfg.Storage.Provider,
		"platform":    cfg.Handler.Platform,
	})
	obs.Metrics("main").RecordSuccess("application_start")
}

// initializeAdapter builds, validates and connects the entity adapter.
// Any failure here is fatal.
func initializeAdapter(cfg *config.Config, obs observability.Provider) *adapter.Adapter {
	logger, metrics := obs.Logger("adapter"), obs.Metrics("adapter")
	sc := cfg.Storage

	entities := adapter.New(sc.Endpoint, sc.AccessKey, sc.SecretKey, adapter.Options{
		Provider:     sc.Provider,
		Port:         sc.Port,
		UseSSL:       sc.UseSSL,
		SessionToken: sc.SessionToken,
		Region:       sc.Region,
		PartSize:     sc.PartSize,
		PathStyle:    sc.PathStyle,
		CreateBucket: sc.CreateBucket,
		Compression:  sc.Compression,
		Timeout:      sc.Timeout,
		MaxRetries:   sc.MaxRetries,
		BasePath:     sc.BasePath,
	})

	svc := adapter.Service{
		Collection: sc.Bucket,
		Logger:     logger,
		Metrics:    metrics,
	}
	if cfg.Events.Enabled {
		svc.Publisher = initializePublisher(cfg, obs)
	}

	if err := entities.Init(svc); err != nil {
		metrics.RecordError("init", "schema")
		log.Fatalf("Failed to initialize adapter: %v", err)
	}

	connectTimeout := sc.Timeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := entities.Connect(ctx); err != nil {
		metrics.RecordError("init", "connect")
		log.Fatalf("Failed to connect to object storage: %v", err)
	}

	return entities
}

// initializePublisher connects the configured event broker
func initializePublisher(cfg *config.Config, obs observability.Provider) adapter.EventPublisher {
	logger, metrics := obs.Logger("events"), obs.Metrics("events")

	var (
		publisher adapter.EventPublisher
		err       error
	)
	switch cfg.Events.Broker {
	case "sqs":
		publisher, err = sqs.NewPublisher(context.Background(), &cfg.Events, logger, metrics)
	default:
		publisher, err = rabbitmq.NewPublisher(&cfg.Events, logger, metrics)
	}
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	return publisher
}

// buildApplication assembles the worker and its handler
func buildApplication(cfg *config.Config, obs observability.Provider, entities *adapter.Adapter) *handler.Handler {
	w := worker.NewEntityWorker(entities, obs.Logger("worker"), obs.Metrics("worker"))
	return handler.NewFactory(w, obs).WithHandlerConfig(cfg.Handler).Create()
}

func startApplication(cfg *config.Config, obs observability.Provider, h *handler.Handler, entities *adapter.Adapter, sink *metrics.CloudWatchSink, startTime time.Time) {
	logger, mainMetrics := obs.Logger("main"), obs.Metrics("main")

	closers := []func(context.Context) error{entities.Disconnect}
	if sink != nil {
		flushCtx, stopFlush := context.WithCancel(context.Background())
		defer stopFlush()
		go sink.Run(flushCtx, cfg.Metrics.FlushInterval)
		closers = append(closers, sink.Flush)
	}

	if h.Config().Platform == handler.PlatformLambda {
		logger.Info(context.Background(), "Starting Lambda handler", nil)
		lambdaAdapter := platforms.NewLambdaAdapter(h, &cfg.Lambda, obs.Logger("lambda"))
		if sink != nil {
			lambdaAdapter.WithAfterInvoke(sink.Flush)
		}
		lambdaAdapter.Start()
		return
	}

	mux := http.NewServeMux()
	if sink == nil {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", platforms.NewHTTPAdapter(h, obs.Logger("http")))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "Starting HTTP server", observability.Fields{
			"addr": cfg.HTTP.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info(context.Background(), "Received shutdown signal", observability.Fields{
			"signal": sig.String(),
		})
	case err := <-serverErr:
		logger.Error(context.Background(), "HTTP server failed", err, nil)
		mainMetrics.RecordError("http_server", "listen")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	closers = append([]func(context.Context) error{server.Shutdown}, closers...)
	if err := handler.Shutdown(ctx, logger, mainMetrics, startTime, closers...); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
	}
}

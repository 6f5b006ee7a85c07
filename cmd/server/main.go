package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/vaidehibh/thyroscan/internal/cache"
	"github.com/vaidehibh/thyroscan/internal/config"
	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/handler"
	"github.com/vaidehibh/thyroscan/internal/logging"
	"github.com/vaidehibh/thyroscan/internal/metrics"
	"github.com/vaidehibh/thyroscan/internal/middleware"
	"github.com/vaidehibh/thyroscan/internal/model"
	"github.com/vaidehibh/thyroscan/internal/store"
)

const serviceName = "thyroscan"

func main() {
	configFile := flag.String("config", "", "Path to config file (optional)")
	port := flag.Int("port", 0, "API server port (overrides config)")
	modelPath := flag.String("model", "", "Path to ONNX model file (overrides config)")
	metadataPath := flag.String("metadata", "", "Path to model metadata JSON (overrides config)")
	redisAddr := flag.String("redis", "", "Redis address (overrides config)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (overrides config)")
	useMock := flag.Bool("mock", false, "Use the mock model (for testing)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *port, *modelPath, *metadataPath, *redisAddr, *metricsPort, *useMock)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogFile, cfg.LogLevel)
	defer log.Sync()

	log.Info("starting service",
		zap.String("service", serviceName),
		zap.Int("port", cfg.Port),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.String("model", cfg.Model),
		zap.Bool("mock", cfg.UseMockModel),
		zap.Bool("otel", cfg.OTELEnabled))

	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer()
		if err != nil {
			log.Warn("failed to initialize tracer", zap.Error(err))
		} else {
			log.Info("tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	var classifier model.Classifier
	if cfg.UseMockModel {
		log.Info("using mock model")
		classifier = model.NewMock()
	} else {
		log.Info("loading model", zap.String("path", cfg.Model), zap.String("metadata", cfg.Metadata))
		classifier, err = model.Open(cfg.Model, cfg.Metadata)
		if err != nil {
			log.Fatal("failed to load model", zap.Error(err))
		}
		log.Info("model loaded", zap.Strings("conv_layers", classifier.Info().ConvLayers))
	}
	defer classifier.Close()

	var redisCache *cache.Redis
	if cfg.Redis != "" {
		log.Info("connecting to redis", zap.String("addr", cfg.Redis))
		redisCache, err = cache.NewRedis(cfg.Redis, cfg.CacheTTL)
		if err != nil {
			log.Warn("redis unavailable, continuing without it", zap.Error(err))
		} else {
			defer redisCache.Close()
		}
	}
	tiered, err := cache.NewTiered(cfg.HeatmapCacheSize, redisCache, log)
	if err != nil {
		log.Fatal("failed to create cache", zap.Error(err))
	}

	var history *store.Store
	if cfg.DBPath != "" {
		history, err = store.Open(cfg.DBPath)
		if err != nil {
			log.Fatal("failed to open history store", zap.Error(err))
		}
		defer history.Close()
		log.Info("history store ready", zap.String("path", cfg.DBPath))
	}

	engine := gradcam.NewEngine(log)
	h := handler.New(classifier, engine, handler.Options{
		Cache:          tiered,
		Store:          history,
		Log:            log,
		ImageSize:      cfg.ImageSize,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	mux := http.NewServeMux()
	h.Register(mux)

	chain := middleware.Chain(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Metrics(mux),
	)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      chain(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	sideServer := startSideServer(cfg.MetricsPort, log)

	metrics.SetHealthy()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("shutting down", zap.String("signal", sig.String()))

		metrics.SetUnhealthy()
		// Give load balancers time to notice the health flip.
		time.Sleep(5 * time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		apiServer.Shutdown(ctx)
		sideServer.Shutdown(ctx)
		if tracerShutdown != nil {
			tracerShutdown(ctx)
		}
	}()

	log.Info("api server listening", zap.String("addr", apiServer.Addr))
	if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// applyFlags lets command-line flags override file and environment values.
func applyFlags(cfg *config.Config, port int, modelPath, metadataPath, redisAddr string, metricsPort int, useMock bool) {
	if port > 0 {
		cfg.Port = port
	}
	if modelPath != "" {
		cfg.Model = modelPath
	}
	if metadataPath != "" {
		cfg.Metadata = metadataPath
	}
	if redisAddr != "" {
		cfg.Redis = redisAddr
	}
	if metricsPort > 0 {
		cfg.MetricsPort = metricsPort
	}
	if useMock {
		cfg.UseMockModel = true
	}
}

// startSideServer serves Prometheus metrics and liveness probes on a
// separate port.
func startSideServer(port int, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info("metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return server
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(handler.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

package main

import (
	"NYCU-SDC/workflow-editor-backend/internal"
	"NYCU-SDC/workflow-editor-backend/internal/config"
	"NYCU-SDC/workflow-editor-backend/internal/cors"
	"NYCU-SDC/workflow-editor-backend/internal/storage"
	"NYCU-SDC/workflow-editor-backend/internal/trace"
	"NYCU-SDC/workflow-editor-backend/internal/workflow"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logutil "github.com/NYCU-SDC/summer/pkg/log"
	"github.com/NYCU-SDC/summer/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.6.1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var AppName = "no-app-name"

var Version = "no-version"

var BuildTime = "no-build-time"

var CommitHash = "no-commit-hash"

var Environment = "no-env"

func main() {
	AppName = os.Getenv("APP_NAME")
	if AppName == "" {
		AppName = "workflow-editor-backend"
	}

	if BuildTime == "no-build-time" {
		now := time.Now()
		BuildTime = "not provided (now: " + now.Format(time.RFC3339) + ")"
	}

	Environment = os.Getenv("ENV")
	if Environment == "" {
		Environment = "no-env"
	}

	appMetadata := []zap.Field{
		zap.String("app_name", AppName),
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit_hash", CommitHash),
		zap.String("environment", Environment),
	}

	cfg, cfgLog := config.Load()
	err := cfg.Validate()
	if err != nil {
		switch {
		case errors.Is(err, config.ErrDatabaseURLRequired):
			message := EarlyApplicationFailed("Database URL is required",
				"Please set the DATABASE_URL environment variable or provide a config file with the storage.database_url key.")
			log.Fatal(message)
		case errors.Is(err, config.ErrRedisURLRequired):
			message := EarlyApplicationFailed("Redis URL is required",
				"Please set the REDIS_URL environment variable or provide a config file with the storage.redis_url key.")
			log.Fatal(message)
		default:
			log.Fatalf("Failed to validate config: %v, exiting...", err)
		}
	}

	logger, err := initLogger(&cfg, appMetadata)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v, exiting...", err)
	}

	cfgLog.FlushToZap(logger)

	logger.Info("Starting application...")

	shutdown, err := initOpenTelemetry(AppName, Version, BuildTime, CommitHash, Environment, cfg.OtelCollectorUrl)
	if err != nil {
		logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}

	// handle interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	slot, closeSlot, err := storage.Open(ctx, logger, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open storage backend", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer closeSlot()

	serializer, err := storage.NewSerializerFromConfig(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to build slot serializer", zap.Error(err))
	}

	logger.Info("Storage ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("key", cfg.Storage.Key),
		zap.String("codec", cfg.Storage.Codec),
		zap.String("compression", cfg.Storage.Compression))

	validator := internal.NewValidator()
	problemWriter := internal.NewProblemWriter()

	// Store
	store, err := workflow.NewStore(ctx, logger, slot, serializer, cfg.Storage.Key)
	if err != nil {
		logger.Fatal("Failed to initialize workflow store", zap.Error(err))
	}

	// Handler
	workflowHandler := workflow.NewHandler(logger, validator, problemWriter, store)

	// Middleware
	traceMiddleware := trace.NewMiddleware(logger, cfg.Debug)
	corsMiddleware := cors.NewMiddleware(logger, cfg.AllowOrigins)

	// Basic Middleware (Tracing and Recovery)
	basicMiddleware := middleware.NewSet(traceMiddleware.RecoverMiddleware)
	basicMiddleware = basicMiddleware.Append(traceMiddleware.TraceMiddleWare)
	basicMiddleware = basicMiddleware.Append(corsMiddleware.HandlerFunc)

	// Editor Middleware
	editorMiddleware := basicMiddleware.Append(traceMiddleware.RequestSourceMiddleware)

	// HTTP Server
	mux := http.NewServeMux()

	// Health check route
	mux.HandleFunc("GET /api/healthz", basicMiddleware.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			logger.Error("Failed to write response", zap.Error(err))
		}
	}))

	// CORS preflight
	mux.HandleFunc("OPTIONS /api/", basicMiddleware.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Metrics route
	mux.Handle("GET /metrics", promhttp.Handler())

	// Workflow routes
	mux.HandleFunc("GET /api/workflow", editorMiddleware.HandlerFunc(workflowHandler.GetWorkflow))
	mux.HandleFunc("PUT /api/workflow", editorMiddleware.HandlerFunc(workflowHandler.SetWorkflow))

	// Node routes
	mux.HandleFunc("POST /api/workflow/nodes", editorMiddleware.HandlerFunc(workflowHandler.AddNode))
	mux.HandleFunc("PATCH /api/workflow/nodes/{id}", editorMiddleware.HandlerFunc(workflowHandler.UpdateNode))
	mux.HandleFunc("PUT /api/workflow/nodes/{id}/position", editorMiddleware.HandlerFunc(workflowHandler.MoveNode))
	mux.HandleFunc("DELETE /api/workflow/nodes/{id}", editorMiddleware.HandlerFunc(workflowHandler.DeleteNode))

	// Edge routes
	mux.HandleFunc("POST /api/workflow/edges", editorMiddleware.HandlerFunc(workflowHandler.Connect))

	// Subtree routes
	mux.HandleFunc("GET /api/workflow/nodes/{id}/subtree", editorMiddleware.HandlerFunc(workflowHandler.GetSubtree))
	mux.HandleFunc("POST /api/workflow/nodes/{id}/subtree/copy", editorMiddleware.HandlerFunc(workflowHandler.CopySubtree))
	mux.HandleFunc("DELETE /api/workflow/nodes/{id}/subtree", editorMiddleware.HandlerFunc(workflowHandler.DeleteSubtree))

	// Persistence and history routes
	mux.HandleFunc("POST /api/workflow/save", editorMiddleware.HandlerFunc(workflowHandler.Save))
	mux.HandleFunc("POST /api/workflow/load", editorMiddleware.HandlerFunc(workflowHandler.Load))
	mux.HandleFunc("POST /api/workflow/reset", editorMiddleware.HandlerFunc(workflowHandler.Reset))
	mux.HandleFunc("POST /api/workflow/clear", editorMiddleware.HandlerFunc(workflowHandler.Clear))
	mux.HandleFunc("POST /api/workflow/undo", editorMiddleware.HandlerFunc(workflowHandler.Undo))
	mux.HandleFunc("POST /api/workflow/redo", editorMiddleware.HandlerFunc(workflowHandler.Redo))

	// File transfer routes
	mux.HandleFunc("GET /api/workflow/export", editorMiddleware.HandlerFunc(workflowHandler.Export))
	mux.HandleFunc("POST /api/workflow/import", editorMiddleware.HandlerFunc(workflowHandler.Import))

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting listening request", zap.String("host", cfg.Host), zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Fail to start server with error", zap.Error(err))
		}
	}()

	// wait for context close
	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	otelCtx, otelCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer otelCancel()
	if err := shutdown(otelCtx); err != nil {
		logger.Error("Forced to shutdown OpenTelemetry", zap.Error(err))
	}

	logger.Info("Successfully shutdown")
}

func initLogger(cfg *config.Config, appMetadata []zap.Field) (*zap.Logger, error) {
	var err error
	var logger *zap.Logger
	if cfg.Debug {
		logger, err = logutil.ZapDevelopmentConfig().Build()
		if err != nil {
			return nil, err
		}
		logger.Info("Running in debug mode", appMetadata...)
	} else {
		logger, err = logutil.ZapProductionConfig().Build()
		if err != nil {
			return nil, err
		}

		logger = logger.With(appMetadata...)
	}
	defer func() {
		err := logger.Sync()
		if err != nil {
			zap.S().Errorw("Failed to sync logger", zap.Error(err))
		}
	}()

	return logger, nil
}

func initOpenTelemetry(appName, version, buildTime, commitHash, environment, otelCollectorUrl string) (func(context.Context) error, error) {
	ctx := context.Background()

	serviceName := semconv.ServiceNameKey.String(appName)
	serviceVersion := semconv.ServiceVersionKey.String(version)
	serviceNamespace := semconv.ServiceNamespaceKey.String("workflow-editor")
	serviceCommitHash := semconv.ServiceVersionKey.String(commitHash)
	serviceEnvironment := semconv.DeploymentEnvironmentKey.String(environment)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			serviceName,
			serviceVersion,
			serviceNamespace,
			serviceCommitHash,
			serviceEnvironment,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if otelCollectorUrl != "" {
		conn, err := initGrpcConn(otelCollectorUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}

		traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}

		bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
		options = append(options, sdktrace.WithSpanProcessor(bsp))
	}

	tracerProvider := sdktrace.NewTracerProvider(options...)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tracerProvider.Shutdown, nil
}

func initGrpcConn(target string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	return conn, nil
}

func EarlyApplicationFailed(title, action string) string {
	result := `
-----------------------------------------
Application Failed to Start
-----------------------------------------

# What's wrong?
%s

# How to fix it?
%s

`

	result = fmt.Sprintf(result, title, action)
	return result
}

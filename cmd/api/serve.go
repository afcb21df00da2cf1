package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"woof-guard/internal/config"
	"woof-guard/internal/domain"
	"woof-guard/internal/handler"
	"woof-guard/internal/logger"
	"woof-guard/internal/metrics"
	"woof-guard/internal/security"
	"woof-guard/internal/service"
	"woof-guard/internal/storage"
)

const shutdownTimeout = 30 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the security gate HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides SERVER_PORT)")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}

// alerting agrupa o sink escolhido e o que precisa ser liberado no shutdown
type alerting struct {
	sink   domain.AlertSink
	sentry *security.SentrySink
	redis  *redis.Client
}

func runServe(cmd *cobra.Command, args []string) error {
	configLoader := config.NewConfigLoader()
	cfg, err := configLoader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort = servePort
	}

	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Starting woof-guard", map[string]interface{}{
		"version":   version,
		"env":       cfg.AppEnv,
		"log_level": cfg.LogLevel,
		"port":      cfg.ServerPort,
		"bypass":    cfg.RateLimitBypassed(),
	})

	// Storage dos contadores
	storageConfig := storage.BuildStorageConfigFromEnv(cfg.StorageType, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB)
	store, err := storage.NewStorageFactory().CreateStorage(storageConfig, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	appMetrics := metrics.New()

	// Alertas: Sentry e/ou Redis pub/sub, com log como fallback
	alerts, err := buildAlerting(cfg, store, appLogger)
	if err != nil {
		return err
	}
	if alerts.redis != nil {
		defer alerts.redis.Close()
	}

	dispatcher := security.NewDispatcher(alerts.sink, cfg.AlertBufferSize, appLogger,
		security.WithDispatcherMetrics(appMetrics),
		security.WithCaptureTimeout(cfg.AlertCaptureTimeout),
	)
	monitorConfig := security.MonitorConfig{Window: cfg.MonitorWindow, Threshold: cfg.MonitorThreshold}
	monitor := security.NewMonitor(monitorConfig, dispatcher, appLogger, nil, security.WithMonitorMetrics(appMetrics))

	factory := service.NewLimiterFactory(store, monitor, cfg.RateLimitBypassed(), nil, appLogger, service.WithMetrics(appMetrics))
	admin := service.NewAdminService(store, configLoader.Policies(), nil, appLogger)

	upstream, err := handler.NewUpstream(cfg.UpstreamURL, appLogger)
	if err != nil {
		return err
	}

	handlers := handler.NewHandlers(handler.Dependencies{
		Factory:        factory,
		Admin:          admin,
		Monitor:        monitor,
		MonitorConfig:  monitorConfig,
		Metrics:        appMetrics,
		Upstream:       upstream,
		Logger:         appLogger,
		AdminToken:     cfg.AdminToken,
		TrustedProxies: cfg.TrustedProxyList(),
	})

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	if err := handlers.SetupRoutes(router, configLoader.Routes()); err != nil {
		return fmt.Errorf("failed to configure routes: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"addr":     server.Addr,
			"policies": len(admin.Policies()),
			"sink":     alerts.sink.Name(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		appLogger.Error("Failed to start server", err, nil)
		return err
	case <-quit:
	}
	appLogger.Info("Shutting down server...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
	}

	// Entrega os alertas pendentes antes de fechar as conexões
	if err := dispatcher.Close(ctx); err != nil {
		appLogger.Warn("Alert queue not fully drained", map[string]interface{}{
			"error":   err.Error(),
			"pending": dispatcher.Pending(),
		})
	}
	if alerts.sentry != nil {
		alerts.sentry.Flush(5 * time.Second)
	}

	appLogger.Info("Server stopped gracefully", nil)
	return nil
}

// buildAlerting escolhe os sinks de alerta conforme a configuração
func buildAlerting(cfg *config.Config, store domain.CounterStore, appLogger domain.Logger) (*alerting, error) {
	result := &alerting{}
	var sinks []domain.AlertSink

	if cfg.SentryDSN != "" {
		sentrySink, err := security.NewSentrySink(cfg.SentryDSN, cfg.AppEnv)
		if err != nil {
			return nil, err
		}
		result.sentry = sentrySink
		sinks = append(sinks, sentrySink)
	}

	if cfg.AlertRedisChannel != "" {
		var client redis.Cmdable
		if redisStore, ok := store.(*storage.RedisStorage); ok {
			client = redisStore.Client()
		} else {
			result.redis = storage.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB)
			client = result.redis
		}
		sinks = append(sinks, security.NewRedisSink(client, cfg.AlertRedisChannel))
	}

	switch len(sinks) {
	case 0:
		result.sink = security.NewLogSink(appLogger)
	case 1:
		result.sink = sinks[0]
	default:
		result.sink = security.NewFanoutSink(sinks...)
	}

	appLogger.Info("Alert sink configured", map[string]interface{}{
		"sink": result.sink.Name(),
	})
	return result, nil
}

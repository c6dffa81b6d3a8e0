package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"interaction-dashboard/pkg/circuitbreaker"
	"interaction-dashboard/pkg/config"
	"interaction-dashboard/pkg/correlation"
	"interaction-dashboard/pkg/dashboard"
	http_server "interaction-dashboard/pkg/http"
	"interaction-dashboard/pkg/ingest"
	"interaction-dashboard/pkg/messaging"
	"interaction-dashboard/pkg/metrics"
	"interaction-dashboard/pkg/ratelimit"
	"interaction-dashboard/pkg/store"
	"interaction-dashboard/pkg/version"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	service    *dashboard.Service
	httpServer *http_server.Server
	eventHub   *http_server.EventHub
	amqpClient *messaging.AMQPClient
	rateLimit  *ratelimit.HTTPMiddleware

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	// Set up logger with basic configuration (will be updated after config is loaded)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.WithField("version", version.Version).Info("Interaction dashboard started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdown()
	logger.Info("Application shut down gracefully")
}

// initialize loads configuration and wires every component
func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		return fmt.Errorf("failed to apply logging configuration: %w", err)
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.Init(logger)
	metrics.EnableMetrics(appConfig.HTTP.EnableMetrics)
	logger.Info("Metrics system initialized")

	mode, err := dashboard.ParseImportMode(appConfig.Ingest.Mode, dashboard.ModeAppend)
	if err != nil {
		return fmt.Errorf("invalid IMPORT_MODE: %w", err)
	}

	normalizer := ingest.NewNormalizer(logger, ingest.WithLocation(appConfig.Ingest.Location))
	service = dashboard.NewService(logger, store.NewMemoryStore(), normalizer, dashboard.Options{
		TopAgents:    appConfig.Dashboard.TopAgents,
		PrintMaxRows: appConfig.Dashboard.PrintMaxRows,
		ImportMode:   mode,
	})

	httpServer = http_server.NewServer(logger, appConfig.HTTP, service, http_server.Options{
		DefaultPageSize: appConfig.Dashboard.DefaultPageSize,
		MaxUploadBytes:  appConfig.Ingest.MaxUploadBytes(),
		Location:        appConfig.Ingest.Location,
	})
	httpServer.SetCorrelationMiddleware(correlation.NewMiddleware(logger, true))

	if appConfig.RateLimit.Enabled {
		rateLimit = ratelimit.NewHTTPMiddleware(appConfig.RateLimit, logger)
		httpServer.SetRateLimitMiddleware(rateLimit)
	}

	if appConfig.WebSocket.Enabled {
		eventHub = http_server.NewEventHub(logger, appConfig.WebSocket.PingInterval)
		eventHub.Start(rootCtx)
		httpServer.SetEventHub(eventHub)
		service.AddPublisher(eventHub)
	}

	if appConfig.Messaging.Enabled {
		initializeAMQP()
	}

	logStartupConfig()
	return nil
}

// initializeAMQP connects the dataset event publisher. A broker that is down
// at startup only disables publishing until the reconnect loop succeeds.
func initializeAMQP() {
	amqpClient = messaging.NewAMQPClient(logger, messaging.NewAMQPConfig(appConfig.Messaging))
	httpServer.SetAMQPClient(amqpClient)

	if err := amqpClient.Connect(); err != nil {
		logger.WithError(err).Warn("Failed to connect to AMQP server, dataset events will not be published")
	}

	publisher := messaging.NewDatasetPublisher(amqpClient, logger)
	publisher.SetCircuitBreaker(circuitbreaker.NewCircuitBreaker("amqp-publish", circuitbreaker.Config{
		FailureThreshold: int64(appConfig.Messaging.BreakerThreshold),
		Timeout:          appConfig.Messaging.BreakerTimeout,
	}, logger))
	service.AddPublisher(publisher)
}

func shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appConfig.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the root context to signal shutdown to all goroutines
	rootCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down HTTP server")
	} else {
		logger.Info("HTTP server shut down successfully")
	}

	if rateLimit != nil {
		rateLimit.Stop()
	}

	if amqpClient != nil {
		amqpClient.Disconnect()
	}
}

func logStartupConfig() {
	logger.Info("Interaction dashboard is starting with the following configuration:")

	logger.WithFields(logrus.Fields{
		"http_port":          appConfig.HTTP.Port,
		"http_metrics":       appConfig.HTTP.EnableMetrics,
		"http_tls":           appConfig.HTTP.TLSEnabled,
		"http_read_timeout":  appConfig.HTTP.ReadTimeout,
		"http_write_timeout": appConfig.HTTP.WriteTimeout,
	}).Info("HTTP server configuration")

	logger.WithFields(logrus.Fields{
		"timezone":      appConfig.Ingest.Timezone,
		"max_upload_mb": appConfig.Ingest.MaxUploadMB,
		"import_mode":   appConfig.Ingest.Mode,
	}).Info("Ingest configuration")

	logger.WithFields(logrus.Fields{
		"top_agents":        appConfig.Dashboard.TopAgents,
		"default_page_size": appConfig.Dashboard.DefaultPageSize,
		"print_max_rows":    appConfig.Dashboard.PrintMaxRows,
	}).Info("Dashboard configuration")

	logger.WithFields(logrus.Fields{
		"amqp_enabled":     appConfig.Messaging.Enabled,
		"amqp_exchange":    appConfig.Messaging.Exchange,
		"amqp_queue":       appConfig.Messaging.QueueName,
		"rate_limit":       appConfig.RateLimit.Enabled,
		"websocket_stream": appConfig.WebSocket.Enabled,
	}).Info("Integration configuration")
}

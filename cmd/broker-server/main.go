// Package main provides the broker server executable with HTTP API and
// background delivery tasks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/broker"
	"github.com/coregx/broker/adapters/relica"
	"github.com/coregx/broker/cmd/broker-server/internal/api"
	"github.com/coregx/broker/cmd/broker-server/internal/config"
	"github.com/coregx/broker/retry"
	"github.com/coregx/broker/transport"
)

// SimpleLogger implements broker.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("🚀 Starting Broker Server v0.1.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("📝 Configuration loaded:")
	log.Printf("   Server: %s:%d (name: %s)", cfg.Server.Host, cfg.Server.Port, cfg.Server.Name)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Poll interval: %v", cfg.Broker.PollInterval)
	log.Printf("   Failure backoff: [%v, %v]", cfg.Broker.BackoffMin, cfg.Broker.BackoffMax)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Create logger
	logger := &SimpleLogger{}

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	log.Println("✅ Repositories initialized (Relica adapters)")

	// Create notification service
	var notificationService broker.NotificationService
	if cfg.Broker.EnableNotifications {
		notificationService = broker.NewLoggingNotificationService(logger)
	} else {
		notificationService = &broker.NoOpNotificationService{}
	}

	// Create registry and warm it up from the durable subscription records
	registry, err := broker.NewRegistry(repos.Store, logger)
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}

	warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	topics, err := repos.Topic.List(warmupCtx)
	if err != nil && !broker.IsNoData(err) {
		warmupCancel()
		log.Fatalf("Failed to load topics: %v", err)
	}
	for _, topic := range topics {
		registry.CreateTopic(topic.Name)
	}
	subs, err := repos.Subscription.FindAllActive(warmupCtx)
	warmupCancel()
	if err != nil && !broker.IsNoData(err) {
		log.Fatalf("Failed to load subscriptions: %v", err)
	}
	for i := range subs {
		registry.Attach(&subs[i])
	}
	log.Printf("✅ Registry warmed up (%d topics, %d active subscriptions)", len(topics), len(subs))

	// Create transport senders
	dispatcherOpts := []broker.DispatcherOption{
		broker.WithDispatcherLogger(logger),
		broker.WithRESTSender(transport.NewHTTPSender(nil)),
		broker.WithServiceInvoker(transport.NewServiceRegistry()),
	}

	if cfg.AMQP.URL != "" {
		amqpConn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
		defer amqpConn.Close()

		amqpCh, err := amqpConn.Channel()
		if err != nil {
			log.Fatalf("Failed to open AMQP channel: %v", err)
		}
		dispatcherOpts = append(dispatcherOpts,
			broker.WithAMQPSender(transport.NewAMQPSender(amqpCh, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)))
		log.Printf("✅ AMQP transport connected (exchange: %s)", cfg.AMQP.Exchange)
	}

	dispatcher, err := broker.NewDispatcher(dispatcherOpts...)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	// Create task manager and start one delivery task per active subscription
	taskManager, err := broker.NewTaskManager(
		broker.WithStore(repos.Store),
		broker.WithDispatcher(dispatcher),
		broker.WithLogger(logger),
		broker.WithPollInterval(cfg.Broker.PollInterval),
		broker.WithBackoff(retry.NewBackoff(cfg.Broker.BackoffMin, cfg.Broker.BackoffMax)),
		broker.WithNotifications(notificationService),
		broker.WithServerName(cfg.Server.Name),
	)
	if err != nil {
		log.Fatalf("Failed to create task manager: %v", err)
	}

	for i := range subs {
		taskManager.StartTask(&subs[i])
	}
	log.Printf("✅ Delivery tasks started (%d)", taskManager.TaskCount())

	// Create Publisher service
	publisher, err := broker.NewPublisher(
		broker.WithPublisherRegistry(registry),
		broker.WithAccessSource(repos.Permission),
		broker.WithTaskWaker(taskManager),
		broker.WithPublisherLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	log.Println("✅ Publisher service created")

	// Create control handler; catalog changes are persisted through the
	// repositories so they survive a restart.
	control, err := broker.NewControlHandler(registry, taskManager, logger)
	if err != nil {
		log.Fatalf("Failed to create control handler: %v", err)
	}
	control.SetNotifications(notificationService)
	control.SetRepositories(repos.Topic, repos.Subscription)

	// Create API handler
	handler := api.NewHandler(publisher, control, registry, repos.Store, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/publish", handler.HandlePublish)
	mux.HandleFunc("/api/v1/subscribe", handler.HandleSubscribe)
	mux.HandleFunc("/api/v1/subscriptions/", handler.HandleUnsubscribe) // Note trailing slash for :subKey
	mux.HandleFunc("/api/v1/topics", handler.HandleListTopics)
	mux.HandleFunc("/api/v1/control", handler.HandleControl)
	mux.HandleFunc("/api/v1/ws", handler.HandleWebSocket)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🌐 HTTP server listening on %s", addr)
		log.Println("📡 API Endpoints:")
		log.Println("   POST   /api/v1/publish")
		log.Println("   POST   /api/v1/subscribe")
		log.Println("   DELETE /api/v1/subscriptions/:subKey")
		log.Println("   GET    /api/v1/topics")
		log.Println("   POST   /api/v1/control")
		log.Println("   GET    /api/v1/ws?subKey=...")
		log.Println("   GET    /api/v1/health")
		log.Println()
		log.Println("✅ Broker Server is ready!")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	taskManager.Shutdown()
	log.Println("✅ Server stopped gracefully")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger broker.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}

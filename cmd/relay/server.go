package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/events"
	"sms-relay-server/internal/handlers"
	"sms-relay-server/internal/ingest"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/poller"
	"sms-relay-server/internal/provider"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// App bundles the HTTP server with the background loops that feed it:
// the inbox and call pollers, the file-drop ingest pipeline and the
// optional AMQP bridge. All of them stop on the same context.
type App struct {
	srv         *http.Server
	database    *db.Database
	broadcaster *events.Broadcaster
	bridge      *events.AMQPBridge
	loops       []func(ctx context.Context)
}

// SetupServer wires the whole relay from configuration.
func SetupServer(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Server.Port <= 0 {
		return nil, errors.New("invalid server port")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT secret is required")
	}

	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Repositories
	messageRepo := db.NewMessageRepository(database.GetDB())
	conversationRepo := db.NewConversationRepository(database.GetDB())
	callRepo := db.NewCallRepository(database.GetDB())
	operatorRepo := db.NewOperatorRepository(database.GetDB())

	if cfg.Bootstrap.OperatorName != "" {
		if err := seedOperator(operatorRepo, cfg.Bootstrap.OperatorName, cfg.Bootstrap.OperatorPassword); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to seed operator: %w", err)
		}
	}

	// Event fan-out
	broadcaster := events.NewBroadcaster()

	var bridge *events.AMQPBridge
	if cfg.AMQP.URL != "" {
		bridge, err = events.NewAMQPBridge(cfg.AMQP.URL, cfg.AMQP.Exchange, broadcaster)
		if err != nil {
			// The relay is useful without the bus; keep going.
			logger.Error("AMQP bridge unavailable, continuing without it", zap.Error(err))
			bridge = nil
		}
	}

	// Provider and services
	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	messageService := services.NewMessageService(messageRepo, conversationRepo, broadcaster)
	sendService := services.NewSendService(client, messageService, cfg.Provider.Originator)
	conversationService := services.NewConversationService(conversationRepo)

	app := &App{
		database:    database,
		broadcaster: broadcaster,
		bridge:      bridge,
	}

	// Background loops
	inboxPoller := poller.NewInboxPoller(
		client, messageService,
		cfg.Poller.InboxDirection, cfg.Provider.AccountRef,
		cfg.Poller.InboxPageSize, cfg.Poller.InboxInterval,
		inboxNotify(broadcaster))
	callPoller := poller.NewCallPoller(
		callRepo, cfg.Poller.CallsBatchSize, cfg.Poller.CallsInterval,
		missedCallNotify(broadcaster))
	app.loops = append(app.loops, inboxPoller.Run, callPoller.Run)

	if cfg.Ingest.Dir != "" {
		ingestCfg := ingest.Config{
			Dir:           cfg.Ingest.Dir,
			Extension:     cfg.Ingest.Extension,
			Delimiter:     cfg.Ingest.Delimiter,
			DebounceDelay: cfg.Ingest.DebounceDelay,
		}
		pipeline := ingest.New(ingestCfg, callRepo, broadcaster, func() {
			broadcaster.Publish(events.EventConversationsUpdated, nil)
		})
		app.loops = append(app.loops, func(ctx context.Context) {
			if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ingest pipeline stopped", zap.Error(err))
			}
		})
	}
	if bridge != nil {
		app.loops = append(app.loops, bridge.Run)
	}

	// HTTP surface
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	setupRoutes(router, cfg, operatorRepo, messageService, sendService, conversationService, broadcaster)

	app.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // SSE streams stay open indefinitely
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// inboxNotify broadcasts a conversations-updated nudge after a batch of
// polled messages landed.
func inboxNotify(b *events.Broadcaster) poller.NotifyFunc {
	return func(s poller.Summary) error {
		b.Publish(events.EventConversationsUpdated, s)
		return nil
	}
}

// missedCallNotify broadcasts the missed-call summary in its canonical
// payload shape.
func missedCallNotify(b *events.Broadcaster) poller.NotifyFunc {
	return func(s poller.Summary) error {
		b.Publish(events.EventMissedCall, events.MissedCallPayload{
			Count:    s.Count,
			MaxID:    s.MaxID,
			LatestAt: s.LatestAt,
		})
		return nil
	}
}

// seedOperator creates the bootstrap operator on first start so login is
// possible on a fresh database. An existing operator with that name is
// left untouched.
func seedOperator(operators db.OperatorRepository, name, password string) error {
	if password == "" {
		return errors.New("bootstrap operator password is required")
	}

	existing, err := operators.GetByName(name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := operators.Create(&models.Operator{
		Name:         name,
		PasswordHash: string(hash),
		Active:       true,
	}); err != nil {
		return err
	}

	logger.Info("Bootstrap operator created", zap.String("operator", name))
	return nil
}

// setupRoutes configures all the HTTP routes
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	operatorRepo db.OperatorRepository,
	messageService *services.MessageService,
	sendService *services.SendService,
	conversationService *services.ConversationService,
	broadcaster *events.Broadcaster,
) {
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestSizeLimitMiddleware(1 << 20))
	router.Use(middleware.AuditLogMiddleware())

	authHandler := handlers.NewAuthHandler(cfg, operatorRepo)
	messageHandler := handlers.NewMessageHandler(sendService, messageService, cfg.Provider.Originator)
	conversationHandler := handlers.NewConversationHandler(conversationService)
	eventsHandler := handlers.NewEventsHandler(broadcaster)

	router.GET("/health", handleHealthCheck)

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		protected.POST("/messages/send", messageHandler.Send)
		protected.POST("/messages/inbound", messageHandler.Inbound)
		protected.GET("/messages/:phone", messageHandler.ListByPhone)
		protected.GET("/conversations", conversationHandler.List)
		protected.GET("/conversations/:phone", conversationHandler.Get)
		protected.POST("/conversations/:phone/claim", conversationHandler.Claim)
		protected.POST("/conversations/:phone/read", conversationHandler.MarkRead)
		protected.GET("/events", eventsHandler.Stream)
	}
}

// handleHealthCheck handles the health check endpoint
func handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"version": version,
		"service": "sms-relay-server",
	})
}

// Start runs the server and background loops until an interrupt arrives,
// then shuts everything down on one context.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, loop := range a.loops {
		wg.Add(1)
		go func(run func(ctx context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	wg.Wait()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := a.srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return a.Close()
}

// Close releases the app's long-lived resources.
func (a *App) Close() error {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			logger.Warn("Failed to close AMQP bridge", zap.Error(err))
		}
	}
	if a.database != nil {
		return a.database.Close()
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/config"
	"github.com/prperemyshlev/shop-session/internal/handler"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	client *Client
	router *gin.Engine
	server *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	client, err := NewClient(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	healthChecker := NewHealthChecker(infra, client)

	sessionHandler := handler.NewSessionHandler(client.Auth, client.Session)
	connectionHandler := handler.NewConnectionHandler(client.Channel)
	notificationHandler := handler.NewNotificationHandler(client.Notifications, client.Native)
	eventsHandler := handler.NewEventsHandler(client.Bus, client.Session, client.Channel, infra.Logger())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, client, sessionHandler, connectionHandler, notificationHandler, eventsHandler, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration,
		// No WriteTimeout: the event stream is long-lived.
	}

	srv.RegisterOnShutdown(eventsHandler.Close)

	return &App{
		infra:  infra,
		config: cfg,
		client: client,
		router: router,
		server: srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Client() *Client {
	return a.client
}

func setupRoutes(
	router *gin.Engine,
	client *Client,
	sessionHandler *handler.SessionHandler,
	connectionHandler *handler.ConnectionHandler,
	notificationHandler *handler.NotificationHandler,
	eventsHandler *handler.EventsHandler,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1")
	{
		session := api.Group("/session")
		{
			session.GET("", sessionHandler.Get)
			session.POST("/login", sessionHandler.Login)
			session.POST("/logout", sessionHandler.Logout)
		}

		api.GET("/events", eventsHandler.Stream)

		gated := api.Group("", handler.SessionGate(client.Session))

		connection := gated.Group("/connection")
		{
			connection.GET("", connectionHandler.Get)
			connection.POST("/ping", connectionHandler.Ping)
		}

		notifications := gated.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
			notifications.GET("/permission", notificationHandler.GetPermission)
			notifications.PUT("/permission", notificationHandler.SetPermission)
			notifications.POST("/permission/request", notificationHandler.RequestPermission)
		}
	}
}

// Start starts the client without serving HTTP
func (a *App) Start(ctx context.Context) error {
	return a.client.Start(ctx)
}

func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	serverErr := a.server.Shutdown(ctx)
	a.client.Stop(ctx)

	err := errors.Join(serverErr, a.infra.Shutdown(ctx))
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}

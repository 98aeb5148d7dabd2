package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prperemyshlev/shop-session/internal/config"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/repository"
	"github.com/prperemyshlev/shop-session/internal/service"
	"github.com/prperemyshlev/shop-session/internal/utils"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"github.com/prperemyshlev/shop-session/pkg/socket"
	"go.uber.org/zap"
)

const pullTimeout = 30 * time.Second

// Client owns the session components and reacts to their events: it opens
// the real-time channel while authenticated, reconnects it after a renewal
// and tears everything down on logout.
type Client struct {
	Bus           *service.EventBus
	Credentials   *service.CredentialStore
	Session       *service.SessionManager
	Gateway       *service.Gateway
	Channel       *service.RealtimeChannel
	Notifications service.NotificationService
	Auth          service.AuthService
	Native        service.NativeNotifier

	bridge    *service.DeliveryBridge
	scheduler *service.SyncScheduler
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	pulls  sync.WaitGroup
}

// NewClient wires the session components over the infrastructure stores
func NewClient(infra Infrastructure, cfg *config.Config) (*Client, error) {
	logger := infra.Logger()

	sealer, err := utils.NewSealer(cfg.Credentials.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential sealer: %w", err)
	}

	socketURL, err := cfg.SocketURL()
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if mp := infra.MeterProvider(); mp != nil {
		metrics, err = observability.NewMetrics(mp.Meter(serviceName))
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	repos := repository.NewRepositories(infra.CredentialStore(), infra.DurableStore())
	bus := service.NewEventBus(cfg.Events.Buffer)

	creds := service.NewCredentialStore(
		repos.Credentials,
		sealer,
		cfg.Credentials.AccessTTL.Duration,
		cfg.Credentials.RefreshTTL.Duration,
		logger,
	)
	session := service.NewSessionManager(creds, repos.Profile, bus, metrics, logger)

	gateway := service.NewGateway(
		&http.Client{Timeout: cfg.API.Timeout.Duration},
		service.GatewayConfig{
			BaseURL:     cfg.API.BaseURL,
			RefreshPath: cfg.API.RefreshPath,
			ExemptPaths: []string{cfg.API.LoginPath, cfg.API.LogoutPath},
		},
		creds,
		session,
		bus,
		metrics,
		logger,
	)

	var native service.NativeNotifier = service.DisabledNotifier{}
	if cfg.Notifications.NativeEnabled {
		native = service.NewHostNotifier(bus)
	}

	bridge := service.NewDeliveryBridge(native, cfg.Notifications.DismissAfter.Duration, bus, metrics, logger)
	notifications := service.NewNotificationService(
		service.NewNotificationStore(),
		bridge,
		gateway,
		session,
		cfg.API.NotificationsPath,
		metrics,
		logger,
	)

	channel := service.NewRealtimeChannel(
		service.ChannelConfig{
			URL:                   socketURL,
			ReconnectDelay:        cfg.Realtime.ReconnectDelay.Duration,
			RefreshReconnectDelay: cfg.Realtime.RefreshReconnectDelay.Duration,
			AckTimeout:            cfg.Realtime.AckTimeout.Duration,
		},
		socket.NewWebsocketDialer(cfg.Realtime.HandshakeTimeout.Duration),
		creds,
		notifications,
		bus,
		metrics,
		logger,
	)

	auth := service.NewAuthService(gateway, session, creds, service.AuthPaths{
		Login:  cfg.API.LoginPath,
		Logout: cfg.API.LogoutPath,
	}, logger)

	return &Client{
		Bus:           bus,
		Credentials:   creds,
		Session:       session,
		Gateway:       gateway,
		Channel:       channel,
		Notifications: notifications,
		Auth:          auth,
		Native:        native,
		bridge:        bridge,
		scheduler:     service.NewSyncScheduler(cfg.Notifications.SyncSchedule, notifications, logger),
		logger:        logger.Named("client"),
	}, nil
}

// Start subscribes to session events, reconciles the persisted session and
// starts the backup pull schedule.
func (c *Client) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})

	// Subscribe before Initialize so its transition is not missed.
	sessions, unsubSession := c.Session.SubscribeQueued()
	refreshed, unsubRefreshed := c.Bus.CredentialRefreshed.SubscribeQueued()

	go func() {
		defer close(c.done)
		defer unsubSession()
		defer unsubRefreshed()
		c.loop(loopCtx, sessions, refreshed)
	}()

	if err := c.Session.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	if err := c.scheduler.Start(); err != nil {
		return err
	}

	return nil
}

// Stop cancels scheduled work and closes the channel
func (c *Client) Stop(ctx context.Context) {
	c.scheduler.Stop(ctx)

	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}

	c.pulls.Wait()
	c.Channel.Disconnect()
	c.bridge.DismissAll(ctx)
	c.logger.Info("Client stopped")
}

func (c *Client) loop(ctx context.Context, sessions <-chan domain.SessionState, refreshed <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-sessions:
			if !ok {
				return
			}
			c.onSession(ctx, state)
		case _, ok := <-refreshed:
			if !ok {
				return
			}
			c.Channel.ReconnectWithNewCredential()
		}
	}
}

func (c *Client) onSession(ctx context.Context, state domain.SessionState) {
	switch state.Status {
	case domain.SessionAuthenticated:
		if err := c.Channel.Connect(ctx); err != nil {
			c.logger.Warn("Real-time channel not opened", zap.Error(err))
		}
		c.pulls.Add(1)
		go func() {
			defer c.pulls.Done()
			c.pull(ctx)
		}()
	case domain.SessionUnauthenticated:
		c.Channel.Disconnect()
		c.Notifications.Reset(ctx)
		if state.Reason == domain.LogoutExpired {
			c.bridge.SessionExpired()
		}
	}
}

func (c *Client) pull(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	if err := c.Notifications.Sync(ctx); err != nil {
		c.logger.Warn("Initial notification pull failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	notifapp "github.com/flowctl/console/internal/application/notification"
	"github.com/flowctl/console/internal/application/pages"
	"github.com/flowctl/console/internal/config"
	"github.com/flowctl/console/internal/domain/permission"
	httphandler "github.com/flowctl/console/internal/handler/http"
	wshandler "github.com/flowctl/console/internal/handler/websocket"
	"github.com/flowctl/console/internal/infrastructure/authz"
	"github.com/flowctl/console/internal/infrastructure/eventbus"
	"github.com/flowctl/console/internal/infrastructure/flowapi"
	"github.com/flowctl/console/internal/infrastructure/httpserver"
	"github.com/flowctl/console/internal/infrastructure/keycloak"
	"github.com/flowctl/console/internal/infrastructure/metrics"
	mongodbinfra "github.com/flowctl/console/internal/infrastructure/mongodb"
	"github.com/flowctl/console/internal/infrastructure/repository/mongodb"
	"github.com/flowctl/console/internal/infrastructure/tracing"
	"github.com/flowctl/console/internal/infrastructure/websocket"
	"github.com/flowctl/console/internal/middleware"
	"github.com/flowctl/console/internal/service"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
	tracingShutdownTimeout = 5 * time.Second
)

// WebSocket client configuration constants.
const (
	defaultWSWriteWait      = 10 * time.Second
	defaultWSMaxMessageSize = 65536
	defaultWSSendBuffer     = 64
)

const serviceVersion = "0.1.0"

// runner is implemented by event buses that report whether their receive loop is up.
type runner interface {
	IsRunning() bool
}

// Container holds all application dependencies and manages their lifecycle.
// It implements httpserver.HealthChecker.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	MongoDB     *mongo.Client
	MongoDBName string
	Redis       *redis.Client
	EventBus    eventbus.Bus
	Hub         *websocket.Hub
	Broadcaster *websocket.Broadcaster
	Tracing     *tracing.Provider

	// Metrics
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.ConsoleMetrics

	// Upstream and authorization
	FlowAPI           *flowapi.Client
	AuthzFactory      permission.AuthorizerFactory
	AuthzCache        *authz.CachedFactory
	PermissionChecker *service.PermissionChecker

	// Application
	NotificationRepo *mongodb.MongoNotificationRepository
	Notifications    *notifapp.Registry
	PageLoader       *pages.Loader

	// Auth
	TokenValidator middleware.TokenValidator
	GroupResolver  middleware.GroupResolver
	JWTValidator   keycloak.JWTValidator // for cleanup on shutdown

	// Handlers
	PageHandler         *httphandler.PageHandler
	NotificationHandler *httphandler.NotificationHandler
	WSHandler           *wshandler.Handler
}

var _ httpserver.HealthChecker = (*Container)(nil)

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer wires every component. The wiring mode (real/mock) comes from
// config.App.Mode; optional infrastructure is only connected when configured.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	c.logWiringMode()

	if err := c.setupInfrastructure(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	if err := c.setupUpstream(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup upstream: %w", err)
	}

	c.setupApplication()

	if err := c.setupTokenValidator(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup token validator: %w", err)
	}

	c.setupGroupResolver()
	c.setupHTTPHandlers()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

func (c *Container) logWiringMode() {
	mode := c.Config.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	attrs := []any{
		slog.String("mode", string(mode)),
		slog.String("authz", c.Config.Authz.Mode),
		slog.String("eventbus", c.Config.EventBus.Type),
		slog.Bool("persist_notifications", c.Config.Notifications.Persist),
	}
	if c.Config.App.IsMockMode() {
		c.Logger.Warn("container starting in MOCK mode", attrs...)
	} else {
		c.Logger.Info("container starting in REAL mode", attrs...)
	}
}

func (c *Container) validateWiring() error {
	var errs []error

	if c.Hub == nil {
		errs = append(errs, errors.New("websocket hub not initialized"))
	}
	if c.EventBus == nil {
		errs = append(errs, errors.New("event bus not initialized"))
	}
	if c.TokenValidator == nil {
		errs = append(errs, errors.New("token validator not initialized"))
	}
	if c.PermissionChecker == nil {
		errs = append(errs, errors.New("permission checker not initialized"))
	}
	if c.PageLoader == nil || c.PageHandler == nil {
		errs = append(errs, errors.New("page handler not initialized"))
	}
	if c.Notifications == nil || c.NotificationHandler == nil {
		errs = append(errs, errors.New("notification handler not initialized"))
	}
	if c.WSHandler == nil {
		errs = append(errs, errors.New("websocket handler not initialized"))
	}
	if c.Config.IsProduction() && c.Config.App.IsMockMode() {
		errs = append(errs, errors.New("mock mode is not allowed in production"))
	}

	return errors.Join(errs...)
}

func (c *Container) setupInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	c.setupMetrics()

	if err := c.setupTracing(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	if err := c.setupMongoDB(ctx); err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}

	if err := c.setupRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.setupEventBus(); err != nil {
		return fmt.Errorf("eventbus: %w", err)
	}

	c.setupHub()

	return nil
}

func (c *Container) setupMetrics() {
	c.MetricsRegistry = prometheus.NewRegistry()
	c.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewConsoleMetrics(c.MetricsRegistry)
}

func (c *Container) setupTracing() error {
	if !c.Config.Tracing.Enabled {
		return nil
	}
	provider, err := tracing.Init(tracing.Config{
		ServiceName:    c.Config.App.Name,
		ServiceVersion: serviceVersion,
		OutputFile:     c.Config.Tracing.OutputFile,
	})
	if err != nil {
		return err
	}
	c.Tracing = provider
	c.Logger.Info("tracing initialized", slog.String("output", c.Config.Tracing.OutputFile))
	return nil
}

// setupMongoDB connects only when notifications are persisted.
func (c *Container) setupMongoDB(ctx context.Context) error {
	if !c.Config.Notifications.Persist {
		c.Logger.Debug("notification persistence disabled, skipping mongodb")
		return nil
	}

	client, db, err := mongodbinfra.Connect(ctx, mongodbinfra.ConnectConfig{
		URI:            c.Config.MongoDB.URI,
		Database:       c.Config.MongoDB.Database,
		MaxPoolSize:    c.Config.MongoDB.MaxPoolSize,
		ConnectTimeout: c.Config.MongoDB.Timeout,
	})
	if err != nil {
		return err
	}

	c.MongoDB = client
	c.MongoDBName = c.Config.MongoDB.Database
	c.NotificationRepo = mongodb.NewMongoNotificationRepository(
		db.Collection(mongodbinfra.CollectionNotifications),
	)

	c.Logger.Info("connected to mongodb", slog.String("database", c.MongoDBName))
	return nil
}

func (c *Container) setupRedis(ctx context.Context) error {
	if !c.Config.UsesRedis() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	c.Redis = client
	c.Logger.Info("connected to redis", slog.String("addr", c.Config.Redis.Addr))
	return nil
}

func (c *Container) setupEventBus() error {
	switch strings.ToLower(c.Config.EventBus.Type) {
	case "redis":
		if c.Redis == nil {
			return errors.New("redis event bus requires a redis client")
		}
		c.EventBus = eventbus.NewRedisEventBus(c.Redis,
			eventbus.WithLogger(c.Logger),
			eventbus.WithChannelPrefix(c.Config.EventBus.RedisChannelPrefix),
		)
	default:
		c.EventBus = eventbus.NewInMemoryEventBus(eventbus.WithLogger(c.Logger))
	}
	c.Logger.Debug("event bus initialized", slog.String("type", c.Config.EventBus.Type))
	return nil
}

func (c *Container) setupHub() {
	c.Hub = websocket.NewHub(
		websocket.WithHubLogger(c.Logger),
		websocket.WithConnectionGauge(c.Metrics),
	)
	c.Broadcaster = websocket.NewBroadcaster(c.Hub, c.EventBus,
		websocket.WithBroadcasterLogger(c.Logger),
		websocket.WithEventCounter(c.Metrics),
		websocket.WithEventTypes(eventbus.NotificationEventTypes()),
	)
}

// setupUpstream builds the flowctl API client and the authorizer factory.
func (c *Container) setupUpstream() error {
	client, err := flowapi.NewClient(flowapi.Config{
		BaseURL:  c.Config.Upstream.BaseURL,
		Token:    c.Config.Upstream.Token,
		Timeout:  c.Config.Upstream.Timeout,
		Logger:   c.Logger,
		Observer: c.Metrics,
	})
	if err != nil {
		return err
	}
	c.FlowAPI = client

	factory, err := c.newAuthorizerFactory()
	if err != nil {
		return fmt.Errorf("authz: %w", err)
	}

	if c.Config.Authz.CacheEnabled {
		cached, cacheErr := authz.NewCachedFactory(context.Background(), factory, c.Config.Authz.CacheTTL)
		if cacheErr != nil {
			return fmt.Errorf("authz cache: %w", cacheErr)
		}
		c.AuthzCache = cached
		factory = cached
	}
	c.AuthzFactory = factory
	return nil
}

func (c *Container) newAuthorizerFactory() (permission.AuthorizerFactory, error) {
	if strings.EqualFold(c.Config.Authz.Mode, config.AuthzModeCasbin) {
		f, err := authz.NewCasbinFactory(authz.CasbinConfig{
			ModelPath:  c.Config.Authz.ModelPath,
			PolicyPath: c.Config.Authz.PolicyPath,
		})
		if err != nil {
			return nil, err
		}
		c.Logger.Info("authorizer: casbin", slog.String("policy", c.Config.Authz.PolicyPath))
		return f, nil
	}

	// The permission profile may live on a dedicated endpoint.
	profiles := c.FlowAPI.Permissions
	if c.Config.Authz.Endpoint != "" && c.Config.Authz.Endpoint != c.Config.Upstream.BaseURL {
		client, err := flowapi.NewClient(flowapi.Config{
			BaseURL:  c.Config.Authz.Endpoint,
			Token:    c.Config.Upstream.Token,
			Timeout:  c.Config.Upstream.Timeout,
			Logger:   c.Logger,
			Observer: c.Metrics,
		})
		if err != nil {
			return nil, err
		}
		profiles = client.Permissions
	}
	c.Logger.Info("authorizer: remote")
	return authz.NewRemoteFactory(profiles), nil
}

func (c *Container) setupApplication() {
	c.PermissionChecker = service.NewPermissionChecker(c.AuthzFactory,
		service.WithCheckerLogger(c.Logger),
		service.WithDecisionRecorder(c.Metrics),
	)

	c.PageLoader = pages.NewLoader(pages.Config{
		API: pages.API{
			Namespaces: c.FlowAPI.Namespaces,
			Members:    c.FlowAPI.Namespaces.Members,
			Flows:      c.FlowAPI.Flows,
			Executions: c.FlowAPI.Executions,
			Approvals:  c.FlowAPI.Approvals,
		},
		Checker:      c.PermissionChecker,
		PageSize:     c.Config.Upstream.PageSize,
		FlowsPerPage: c.Config.Upstream.FlowsPerPage,
		Recorder:     c.Metrics,
		Logger:       c.Logger,
	})

	registryCfg := notifapp.RegistryConfig{
		Publisher:       c.EventBus,
		Gauge:           c.Metrics,
		DefaultDuration: c.Config.Notifications.DefaultDuration,
		Logger:          c.Logger,
	}
	// A nil *MongoNotificationRepository must not become a non-nil interface.
	if c.NotificationRepo != nil {
		registryCfg.Repository = c.NotificationRepo
	}
	c.Notifications = notifapp.NewRegistry(registryCfg)
}

// setupTokenValidator uses static development tokens only in mock mode. In
// real mode the Keycloak JWKS must be reachable at startup.
func (c *Container) setupTokenValidator() error {
	if c.Config.App.IsMockMode() {
		c.Logger.Warn("mock mode, using static token validator")
		c.TokenValidator = middleware.NewStaticTokenValidator()
		return nil
	}

	jwtValidator, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{
		KeycloakURL:     c.Config.Keycloak.URL,
		Realm:           c.Config.Keycloak.Realm,
		ClientID:        c.Config.Keycloak.ClientID,
		Leeway:          c.Config.Keycloak.JWT.Leeway,
		RefreshInterval: c.Config.Keycloak.JWT.RefreshInterval,
		Logger:          c.Logger,
	})
	if err != nil {
		return fmt.Errorf("keycloak JWT validator: %w", err)
	}

	c.JWTValidator = jwtValidator
	c.TokenValidator = middleware.NewKeycloakValidatorAdapter(jwtValidator)

	c.Logger.Info("token validator initialized with Keycloak",
		slog.String("url", c.Config.Keycloak.URL),
		slog.String("realm", c.Config.Keycloak.Realm),
	)
	return nil
}

// setupGroupResolver enables Admin API group lookups for tokens without a groups claim.
func (c *Container) setupGroupResolver() {
	kc := c.Config.Keycloak
	if !kc.GroupsFromAdminAPI || c.Config.App.IsMockMode() {
		return
	}

	tokens := keycloak.NewAdminTokenManager(keycloak.AdminTokenConfig{
		KeycloakURL:  kc.URL,
		Realm:        kc.Realm,
		ClientID:     kc.ClientID,
		ClientSecret: kc.ClientSecret,
		Username:     kc.AdminUsername,
		Password:     kc.AdminPassword,
	})
	c.GroupResolver = keycloak.NewGroupClient(keycloak.GroupClientConfig{
		KeycloakURL: kc.URL,
		Realm:       kc.Realm,
	}, tokens)
	c.Logger.Info("group resolver initialized with Keycloak Admin API")
}

func (c *Container) setupHTTPHandlers() {
	c.PageHandler = httphandler.NewPageHandler(c.PageLoader, c.PermissionChecker,
		httphandler.WithGatedListings(c.Config.Pages.GateListings),
	)
	c.NotificationHandler = httphandler.NewNotificationHandler(c.Notifications)

	ws := c.Config.WebSocket
	c.WSHandler = wshandler.NewHandler(c.Hub,
		wshandler.WithHandlerLogger(c.Logger),
		wshandler.WithTokenValidator(c.TokenValidator),
		wshandler.WithNotifications(c.Notifications),
		wshandler.WithHandlerConfig(wshandler.HandlerConfig{
			ReadBufferSize:  ws.ReadBufferSize,
			WriteBufferSize: ws.WriteBufferSize,
			AllowedOrigins:  c.Config.Server.Origins(),
			Logger:          c.Logger,
			ClientConfig: websocket.ClientConfig{
				ReadBufferSize:  ws.ReadBufferSize,
				WriteBufferSize: ws.WriteBufferSize,
				PingInterval:    ws.PingInterval,
				PongWait:        ws.PongTimeout,
				WriteWait:       defaultWSWriteWait,
				MaxMessageSize:  defaultWSMaxMessageSize,
				SendBufferSize:  defaultWSSendBuffer,
			},
		}),
	)
}

// Close releases all container resources in reverse order of initialization.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	if c.Notifications != nil {
		c.Notifications.Close()
	}

	if c.JWTValidator != nil {
		if err := c.JWTValidator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("jwt validator close: %w", err))
		}
	}

	if c.AuthzCache != nil {
		if err := c.AuthzCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("authz cache close: %w", err))
		}
	}

	if c.Hub != nil {
		c.Hub.Stop()
		c.Logger.Debug("websocket hub stopped")
	}

	if c.EventBus != nil {
		if err := c.EventBus.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("event bus shutdown: %w", err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()

		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
	}

	if c.Tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()

		if err := c.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}

// StartEventBus subscribes the broadcaster and runs the bus receive loop.
// It must be called before the HTTP server starts accepting requests.
func (c *Container) StartEventBus(ctx context.Context) error {
	if err := c.Broadcaster.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	go func() {
		if err := c.EventBus.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Error("event bus error", slog.String("error", err.Error()))
		}
	}()

	c.Logger.InfoContext(ctx, "event bus started")
	return nil
}

// StartHub starts the WebSocket hub.
func (c *Container) StartHub(ctx context.Context) {
	go c.Hub.Run(ctx)
	c.Logger.InfoContext(ctx, "websocket hub started")
}

// IsReady implements httpserver.HealthChecker. Only configured components are checked.
func (c *Container) IsReady(ctx context.Context) bool {
	for _, status := range c.GetHealthStatus(ctx) {
		if status.Status == httpserver.StatusUnhealthy {
			return false
		}
	}
	return c.Hub != nil
}

// GetHealthStatus implements httpserver.HealthChecker.
func (c *Container) GetHealthStatus(ctx context.Context) []httpserver.ComponentStatus {
	var statuses []httpserver.ComponentStatus

	if c.Config != nil && c.Config.Notifications.Persist {
		mongoStatus := httpserver.ComponentStatus{Name: "mongodb", Status: httpserver.StatusHealthy}
		if c.MongoDB == nil {
			mongoStatus.Status = httpserver.StatusUnhealthy
			mongoStatus.Message = "client not initialized"
		} else if err := c.MongoDB.Ping(ctx, nil); err != nil {
			mongoStatus.Status = httpserver.StatusUnhealthy
			mongoStatus.Message = err.Error()
		}
		statuses = append(statuses, mongoStatus)
	}

	if c.Config != nil && c.Config.UsesRedis() {
		redisStatus := httpserver.ComponentStatus{Name: "redis", Status: httpserver.StatusHealthy}
		if c.Redis == nil {
			redisStatus.Status = httpserver.StatusUnhealthy
			redisStatus.Message = "client not initialized"
		} else if err := c.Redis.Ping(ctx).Err(); err != nil {
			redisStatus.Status = httpserver.StatusUnhealthy
			redisStatus.Message = err.Error()
		}
		statuses = append(statuses, redisStatus)
	}

	hubStatus := httpserver.ComponentStatus{Name: "websocket_hub", Status: httpserver.StatusHealthy}
	if c.Hub == nil {
		hubStatus.Status = httpserver.StatusUnhealthy
		hubStatus.Message = "hub not initialized"
	} else if !c.Hub.IsRunning() {
		hubStatus.Status = httpserver.StatusUnhealthy
		hubStatus.Message = "hub not running"
	}
	statuses = append(statuses, hubStatus)

	busStatus := httpserver.ComponentStatus{Name: "eventbus", Status: httpserver.StatusHealthy}
	if c.EventBus == nil {
		busStatus.Status = httpserver.StatusUnhealthy
		busStatus.Message = "event bus not initialized"
	} else if r, ok := c.EventBus.(runner); ok && !r.IsRunning() {
		busStatus.Status = httpserver.StatusDegraded
		busStatus.Message = "event bus not running"
	}
	statuses = append(statuses, busStatus)

	return statuses
}

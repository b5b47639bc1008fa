// Package config provides configuration loading and validation for the console backend.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultUpstreamTimeout = 15 * time.Second
	DefaultPageSize        = 10
	DefaultFlowsPerPage    = 12

	DefaultAuthzCacheTTL = 30 * time.Second

	DefaultNotificationDuration = 5 * time.Second

	DefaultMongoDBTimeout     = 10 * time.Second
	DefaultMongoDBMaxPoolSize = 100

	DefaultRedisPoolSize = 10

	DefaultWSBufferSize   = 1024
	DefaultWSPingInterval = 30 * time.Second
	DefaultWSPongTimeout  = 60 * time.Second

	DefaultJWTLeeway          = 30 * time.Second
	DefaultJWTRefreshInterval = 1 * time.Hour

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 5
	DefaultLogFileMaxAgeDays = 28

	DefaultRateLimitPerMinute = 300
)

// AppMode defines the application wiring mode.
type AppMode string

// Application wiring modes.
const (
	// AppModeReal uses real implementations (flowctl API, Keycloak, MongoDB, Redis).
	// This is the default mode and should be used in production.
	AppModeReal AppMode = "real"

	// AppModeMock uses static tokens and a permissive local policy for development.
	// This mode is NOT allowed in production environments.
	AppModeMock AppMode = "mock"
)

// Authorization modes.
const (
	AuthzModeRemote = "remote"
	AuthzModeCasbin = "casbin"
)

// Rate limit stores.
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Authz         AuthzConfig         `yaml:"authz"`
	Pages         PagesConfig         `yaml:"pages"`
	Notifications NotificationsConfig `yaml:"notifications"`
	MongoDB       MongoDBConfig       `yaml:"mongodb"`
	Redis         RedisConfig         `yaml:"redis"`
	Keycloak      KeycloakConfig      `yaml:"keycloak"`
	Auth          AuthConfig          `yaml:"auth"`
	EventBus      EventBusConfig      `yaml:"eventbus"`
	Log           LogConfig           `yaml:"log"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Tracing       TracingConfig       `yaml:"tracing"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Mode controls dependency wiring: "real" (default) or "mock".
	// In production, only "real" mode is allowed.
	Mode AppMode `yaml:"mode" env:"APP_MODE"`

	// Name is the application name used in logs, traces and metrics.
	Name string `yaml:"name" env:"APP_NAME"`
}

// IsRealMode returns true if the application should use real implementations.
func (c AppConfig) IsRealMode() bool {
	return c.Mode == "" || c.Mode == AppModeReal
}

// IsMockMode returns true if the application should use mock implementations.
func (c AppConfig) IsMockMode() bool {
	return c.Mode == AppModeMock
}

// ServerConfig holds HTTP server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  string        `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"` // comma separated
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins returns AllowedOrigins as a list.
func (c ServerConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// UpstreamConfig holds the flowctl API client configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url" env:"UPSTREAM_BASE_URL"`
	Token        string        `yaml:"token" env:"UPSTREAM_TOKEN"`
	Timeout      time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT"`
	PageSize     int           `yaml:"default_page_size" env:"UPSTREAM_DEFAULT_PAGE_SIZE"`
	FlowsPerPage int           `yaml:"flows_per_page" env:"UPSTREAM_FLOWS_PER_PAGE"`
}

// AuthzConfig selects and configures the authorizer.
//
//nolint:golines // Struct tags require longer lines for readability
type AuthzConfig struct {
	Mode         string        `yaml:"mode" env:"AUTHZ_MODE"` // remote | casbin
	Endpoint     string        `yaml:"endpoint" env:"AUTHZ_ENDPOINT"`
	ModelPath    string        `yaml:"casbin_model" env:"AUTHZ_CASBIN_MODEL"`
	PolicyPath   string        `yaml:"casbin_policy" env:"AUTHZ_CASBIN_POLICY"`
	CacheEnabled bool          `yaml:"cache_enabled" env:"AUTHZ_CACHE_ENABLED"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"AUTHZ_CACHE_TTL"`
}

// PagesConfig holds page loader options.
type PagesConfig struct {
	// GateListings puts the flow and member listings behind a view permission check.
	GateListings bool `yaml:"gate_listings" env:"PAGES_GATE_LISTINGS"`
}

// NotificationsConfig holds notification store configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type NotificationsConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration" env:"NOTIFICATIONS_DEFAULT_DURATION"`
	Persist         bool          `yaml:"persist" env:"NOTIFICATIONS_PERSIST"`
}

// MongoDBConfig holds MongoDB connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MongoDBConfig struct {
	URI         string        `yaml:"uri" env:"MONGODB_URI"`
	Database    string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout     time.Duration `yaml:"timeout" env:"MONGODB_TIMEOUT"`
	MaxPoolSize uint64        `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE"`
}

// RedisConfig holds Redis connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// KeycloakConfig holds Keycloak connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type KeycloakConfig struct {
	URL                string    `yaml:"url" env:"KEYCLOAK_URL"`
	Realm              string    `yaml:"realm" env:"KEYCLOAK_REALM"`
	ClientID           string    `yaml:"client_id" env:"KEYCLOAK_CLIENT_ID"`
	ClientSecret       string    `yaml:"client_secret" env:"KEYCLOAK_CLIENT_SECRET"`
	AdminUsername      string    `yaml:"admin_username" env:"KEYCLOAK_ADMIN_USERNAME"`
	AdminPassword      string    `yaml:"admin_password" env:"KEYCLOAK_ADMIN_PASSWORD"`
	GroupsFromAdminAPI bool      `yaml:"groups_from_admin_api" env:"KEYCLOAK_GROUPS_FROM_ADMIN_API"`
	JWT                JWTConfig `yaml:"jwt"`
}

// JWTConfig holds JWT validation configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type JWTConfig struct {
	Leeway          time.Duration `yaml:"leeway" env:"KEYCLOAK_JWT_LEEWAY"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"KEYCLOAK_JWT_REFRESH_INTERVAL"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// JWTSecret marks the deployment as production once it differs from the
	// development default (see IsProduction). It does not sign or verify tokens.
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// EventBusConfig holds event bus configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type EventBusConfig struct {
	Type               string `yaml:"type" env:"EVENTBUS_TYPE"` // redis | inmemory
	RedisChannelPrefix string `yaml:"redis_channel_prefix" env:"EVENTBUS_REDIS_CHANNEL_PREFIX"`
}

// LogConfig holds logging configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type LogConfig struct {
	Level  string        `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string        `yaml:"format" env:"LOG_FORMAT"` // json | text
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotated log file next to stdout.
//
//nolint:golines // Struct tags require longer lines for readability
type LogFileConfig struct {
	Path       string `yaml:"path" env:"LOG_FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_FILE_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_FILE_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_FILE_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"LOG_FILE_COMPRESS"`
}

// WebSocketConfig holds WebSocket server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" env:"WS_READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" env:"WS_WRITE_BUFFER_SIZE"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	PongTimeout     time.Duration `yaml:"pong_timeout" env:"WS_PONG_TIMEOUT"`
}

// TracingConfig holds OpenTelemetry configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type TracingConfig struct {
	Enabled    bool   `yaml:"enabled" env:"TRACING_ENABLED"`
	OutputFile string `yaml:"output_file" env:"TRACING_OUTPUT_FILE"` // empty writes to stdout
}

// RateLimitConfig holds per-user request rate limiting.
//
//nolint:golines // Struct tags require longer lines for readability
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerMinute int    `yaml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE"`
	Store             string `yaml:"store" env:"RATE_LIMIT_STORE"` // memory | redis
}

// Configuration errors.
var (
	ErrConfigNotFound      = errors.New("configuration file not found")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrMissingRequired     = errors.New("missing required configuration")
	ErrInvalidDuration     = errors.New("invalid duration format")
	ErrInvalidLogLevel     = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat    = errors.New("invalid log format: must be json or text")
	ErrInvalidEventBusType = errors.New("invalid event bus type: must be redis or inmemory")
	ErrInvalidAppMode      = errors.New("invalid app mode: must be real or mock")
	ErrInvalidAuthzMode    = errors.New("invalid authz mode: must be remote or casbin")
	ErrMockModeInProd      = errors.New("mock mode is not allowed in production")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Mode: AppModeReal,
			Name: "flowctl-console",
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			AllowedOrigins:  "http://localhost:5173",
		},
		Upstream: UpstreamConfig{
			BaseURL:      "http://localhost:7000",
			Timeout:      DefaultUpstreamTimeout,
			PageSize:     DefaultPageSize,
			FlowsPerPage: DefaultFlowsPerPage,
		},
		Authz: AuthzConfig{
			Mode:         AuthzModeRemote,
			CacheEnabled: true,
			CacheTTL:     DefaultAuthzCacheTTL,
		},
		Notifications: NotificationsConfig{
			DefaultDuration: DefaultNotificationDuration,
		},
		MongoDB: MongoDBConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "flowctl_console",
			Timeout:     DefaultMongoDBTimeout,
			MaxPoolSize: DefaultMongoDBMaxPoolSize,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: DefaultRedisPoolSize,
		},
		Keycloak: KeycloakConfig{
			URL:      "http://localhost:8090",
			Realm:    "flowctl",
			ClientID: "flowctl-console",
			JWT: JWTConfig{
				Leeway:          DefaultJWTLeeway,
				RefreshInterval: DefaultJWTRefreshInterval,
			},
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-in-production",
		},
		EventBus: EventBusConfig{
			Type:               "redis",
			RedisChannelPrefix: "console:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  DefaultLogFileMaxSizeMB,
				MaxBackups: DefaultLogFileMaxBackups,
				MaxAgeDays: DefaultLogFileMaxAgeDays,
			},
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  DefaultWSBufferSize,
			WriteBufferSize: DefaultWSBufferSize,
			PingInterval:    DefaultWSPingInterval,
			PongTimeout:     DefaultWSPongTimeout,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: DefaultRateLimitPerMinute,
			Store:             RateLimitStoreMemory,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateApp(errs)
	errs = c.validateServer(errs)
	errs = c.validateUpstream(errs)
	errs = c.validateAuthz(errs)
	errs = c.validateNotifications(errs)
	errs = c.validateMongoDB(errs)
	errs = c.validateRedis(errs)
	errs = c.validateLog(errs)
	errs = c.validateEventBus(errs)
	errs = c.validateWebSocket(errs)
	errs = c.validateRateLimit(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

func (c *Config) validateApp(errs []error) []error {
	if c.App.Mode != "" && c.App.Mode != AppModeReal && c.App.Mode != AppModeMock {
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidAppMode, c.App.Mode))
	}
	if c.App.IsMockMode() && c.IsProduction() {
		errs = append(errs, ErrMockModeInProd)
	}
	return errs
}

func (c *Config) validateServer(errs []error) []error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	return errs
}

func (c *Config) validateUpstream(errs []error) []error {
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url must be an absolute URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if c.Upstream.PageSize <= 0 {
		errs = append(errs, errors.New("upstream.default_page_size must be positive"))
	}
	if c.Upstream.FlowsPerPage <= 0 {
		errs = append(errs, errors.New("upstream.flows_per_page must be positive"))
	}
	return errs
}

func (c *Config) validateAuthz(errs []error) []error {
	switch strings.ToLower(c.Authz.Mode) {
	case AuthzModeRemote:
	case AuthzModeCasbin:
		if c.Authz.PolicyPath == "" && c.App.IsRealMode() {
			errs = append(errs, errors.New("authz.casbin_policy is required in casbin mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidAuthzMode, c.Authz.Mode))
	}
	if c.Authz.CacheEnabled && c.Authz.CacheTTL <= 0 {
		errs = append(errs, errors.New("authz.cache_ttl must be positive when the cache is enabled"))
	}
	return errs
}

func (c *Config) validateNotifications(errs []error) []error {
	if c.Notifications.DefaultDuration < 0 {
		errs = append(errs, errors.New("notifications.default_duration must not be negative"))
	}
	return errs
}

func (c *Config) validateMongoDB(errs []error) []error {
	if !c.Notifications.Persist {
		return errs
	}
	if c.MongoDB.URI == "" {
		errs = append(errs, errors.New("mongodb.uri is required"))
	}
	if c.MongoDB.Database == "" {
		errs = append(errs, errors.New("mongodb.database is required"))
	}
	return errs
}

func (c *Config) validateRedis(errs []error) []error {
	if c.UsesRedis() && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	return errs
}

func (c *Config) validateLog(errs []error) []error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	if c.Log.File.Path != "" && c.Log.File.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("log.file.max_size_mb must be positive"))
	}
	return errs
}

func (c *Config) validateEventBus(errs []error) []error {
	validEventBusTypes := map[string]bool{"redis": true, "inmemory": true}
	if !validEventBusTypes[strings.ToLower(c.EventBus.Type)] {
		errs = append(errs, ErrInvalidEventBusType)
	}
	return errs
}

func (c *Config) validateWebSocket(errs []error) []error {
	if c.WebSocket.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("websocket.read_buffer_size must be positive"))
	}
	if c.WebSocket.WriteBufferSize <= 0 {
		errs = append(errs, errors.New("websocket.write_buffer_size must be positive"))
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, errors.New("websocket.ping_interval must be positive"))
	}
	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, errors.New("websocket.pong_timeout must be positive"))
	}
	return errs
}

func (c *Config) validateRateLimit(errs []error) []error {
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must be positive"))
	}
	switch strings.ToLower(c.RateLimit.Store) {
	case "", RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("rate_limit.store must be memory or redis, got %q", c.RateLimit.Store))
	}
	return errs
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.EventBus.Type, "redis") || c.RateLimit.SharedStore()
}

// SharedStore reports whether rate limit counters live in Redis.
func (c RateLimitConfig) SharedStore() bool {
	return c.Enabled && strings.EqualFold(c.Store, RateLimitStoreRedis)
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// Loader handles configuration loading from .env files, YAML files and environment variables.
type Loader struct {
	configPaths []string
	envFiles    []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/flowctl-console/config.yaml",
		},
		envFiles: []string{".env"},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// WithEnvFiles sets the .env files loaded before the environment is read.
// Missing files are skipped; variables that are already set are kept.
func (l *Loader) WithEnvFiles(paths ...string) *Loader {
	l.envFiles = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	configPath := path
	if configPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only fail when the path was asked for explicitly
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFiles loads the existing .env files without overriding the environment.
func (l *Loader) loadEnvFiles() error {
	var existing []string
	for _, p := range l.envFiles {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}

// IsProduction returns true if authentication appears configured for production.
func (c *Config) IsProduction() bool {
	return c.Auth.JWTSecret != "dev-secret-change-in-production" &&
		c.Auth.JWTSecret != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

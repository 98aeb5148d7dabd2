package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

const minCredentialSecretLength = 32

type Config struct {
	Server        ServerConfig        `env:",prefix=SERVER_"`
	API           APIConfig           `env:",prefix=API_"`
	Realtime      RealtimeConfig      `env:",prefix=REALTIME_"`
	Credentials   CredentialsConfig   `env:",prefix=CREDENTIALS_"`
	Storage       StorageConfig       `env:",prefix=STORAGE_"`
	Postgres      PostgresConfig      `env:",prefix=POSTGRES_"`
	Redis         RedisConfig         `env:",prefix=REDIS_"`
	Notifications NotificationsConfig `env:",prefix=NOTIFICATIONS_"`
	Events        EventsConfig        `env:",prefix=EVENTS_"`
	CORS          CORSConfig          `env:",prefix=CORS_"`
	Env           string              `env:"ENV,default=development"`
	LogLevel      string              `env:"LOG_LEVEL,default=info"`
}

// ServerConfig describes the loopback control surface used by the host UI.
type ServerConfig struct {
	Port        string   `env:"PORT,default=8787"`
	Host        string   `env:"HOST,default=127.0.0.1"`
	ReadTimeout Duration `env:"READ_TIMEOUT,default=15s"`
}

// APIConfig describes the remote shop API.
type APIConfig struct {
	BaseURL           string   `env:"BASE_URL,default=http://localhost:3000/api"`
	LoginPath         string   `env:"LOGIN_PATH,default=/auth/login"`
	LogoutPath        string   `env:"LOGOUT_PATH,default=/auth/logout"`
	RefreshPath       string   `env:"REFRESH_PATH,default=/auth/refresh"`
	NotificationsPath string   `env:"NOTIFICATIONS_PATH,default=/notifications"`
	Timeout           Duration `env:"TIMEOUT,default=15s"`
}

// RealtimeConfig describes the notification socket.
type RealtimeConfig struct {
	// URL overrides the socket address. When empty it is derived from
	// API.BaseURL with the scheme switched to ws/wss and Path appended.
	URL                   string   `env:"URL"`
	Path                  string   `env:"PATH,default=/ws/notifications"`
	ReconnectDelay        Duration `env:"RECONNECT_DELAY,default=3s"`
	RefreshReconnectDelay Duration `env:"REFRESH_RECONNECT_DELAY,default=500ms"`
	HandshakeTimeout      Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	AckTimeout            Duration `env:"ACK_TIMEOUT,default=10s"`
}

type CredentialsConfig struct {
	Secret     string   `env:"SECRET,required"`
	AccessTTL  Duration `env:"ACCESS_TTL,default=15m"`
	RefreshTTL Duration `env:"REFRESH_TTL,default=365d"`
}

// StorageConfig selects the backend of each persisted slot.
type StorageConfig struct {
	CredentialsBackend string `env:"CREDENTIALS_BACKEND,default=redis"`
	ProfileBackend     string `env:"PROFILE_BACKEND,default=postgres"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=shop_session"`
	Password string `env:"PASSWORD,default=shop_session_password"`
	DBName   string `env:"DB,default=shop_session_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type NotificationsConfig struct {
	SyncSchedule  string   `env:"SYNC_SCHEDULE,default=@every 1m"`
	DismissAfter  Duration `env:"DISMISS_AFTER,default=10s"`
	NativeEnabled bool     `env:"NATIVE_ENABLED,default=false"`
}

// EventsConfig sizes the in-process event bus.
type EventsConfig struct {
	// Buffer is the per-subscriber buffer of the host-facing streams.
	Buffer int `env:"BUFFER,default=32"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type"`
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// SocketURL returns the real-time endpoint, deriving it from the API base URL
// when no explicit URL is configured.
func (c Config) SocketURL() (string, error) {
	if c.Realtime.URL != "" {
		return c.Realtime.URL, nil
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported API base URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + c.Realtime.Path
	return u.String(), nil
}

// IsDevelopment reports whether transport security may be relaxed.
func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if len(c.Credentials.Secret) < minCredentialSecretLength {
		return fmt.Errorf("CREDENTIALS_SECRET must be at least %d characters long", minCredentialSecretLength)
	}

	switch c.Storage.CredentialsBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_CREDENTIALS_BACKEND %q", c.Storage.CredentialsBackend)
	}

	switch c.Storage.ProfileBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_PROFILE_BACKEND %q", c.Storage.ProfileBackend)
	}

	socketURL, err := c.SocketURL()
	if err != nil {
		return err
	}

	if c.IsDevelopment() {
		return nil
	}

	// Credentials only travel over secured transports outside development.
	if !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must use https in %s", c.Env)
	}
	if !strings.HasPrefix(socketURL, "wss://") {
		return fmt.Errorf("real-time URL must use wss in %s", c.Env)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. WONDERS_DATABASE_URL.
const EnvPrefix = "WONDERS"

// Config is the server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig groups the listeners.
type ServerConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	// PublicURL is the externally reachable base URL used in join links.
	PublicURL string `mapstructure:"public_url"`
}

// WebSocketConfig configures player connections.
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins lists browser origins allowed to open a socket. "*"
	// allows any. When empty, the origin of server.public_url is used, and
	// without one only same-host pages may connect.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// HTTPConfig configures the HTTP listener serving the lobby API and sockets.
type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig configures the admin gRPC listener.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds table rules and bot pacing.
type GameConfig struct {
	DefaultMaxPlayers int           `mapstructure:"default_max_players"`
	StartingCoins     int           `mapstructure:"starting_coins"`
	DiscardBonus      int           `mapstructure:"discard_bonus"`
	RoundTimeout      time.Duration `mapstructure:"round_timeout"`
	BotDelay          time.Duration `mapstructure:"bot_delay"`
	// CatalogFile overrides the embedded card catalog when set.
	CatalogFile string `mapstructure:"catalog_file"`
}

// AuthConfig configures player tokens and admin access.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.max_message_size", 64*1024)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_timeout", 15*time.Second)
	v.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.grpc.address", ":17171")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.public_url", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("game.default_max_players", 4)
	v.SetDefault("game.starting_coins", 3)
	v.SetDefault("game.discard_bonus", 3)
	v.SetDefault("game.round_timeout", time.Duration(0))
	v.SetDefault("game.bot_delay", 2*time.Second)
	v.SetDefault("game.catalog_file", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_password_hash", "")
}

// Load reads configuration from path (optional), a .env file in the working
// directory (optional) and WONDERS_* environment variables, in increasing
// order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Server.WebSocket.AllowedOrigins) == 0 && cfg.Server.PublicURL != "" {
		origin, err := originOf(cfg.Server.PublicURL)
		if err != nil {
			return nil, err
		}
		cfg.Server.WebSocket.AllowedOrigins = []string{origin}
	}
	return &cfg, nil
}

// originOf reduces a URL to the scheme://host form browsers send in Origin.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server.public_url must be an absolute URL, got %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Game.DefaultMaxPlayers < 3 || c.Game.DefaultMaxPlayers > 7 {
		return fmt.Errorf("game.default_max_players must be between 3 and 7, got %d", c.Game.DefaultMaxPlayers)
	}
	if c.Game.StartingCoins < 0 || c.Game.DiscardBonus < 0 {
		return fmt.Errorf("game coin settings must not be negative")
	}
	if c.Game.RoundTimeout < 0 {
		return fmt.Errorf("game.round_timeout must not be negative")
	}
	if c.Database.MaxConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database pool bounds are invalid: min %d, max %d", c.Database.MinConns, c.Database.MaxConns)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

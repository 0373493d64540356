package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Gateway backends.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port      string `env:"PORT" envDefault:"4000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	JWTSecret    string        `env:"JWT_SECRET,required"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"72h"`
	SessionSweep time.Duration `env:"SESSION_SWEEP" envDefault:"1m"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	Backend     string `env:"GATEWAY_BACKEND" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"vigila"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	RESTURL     string `env:"REST_URL"`
	RESTAPIKey  string `env:"REST_API_KEY"`
	RESTMaxBody int64  `env:"REST_MAX_BODY" envDefault:"10485760"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CacheMaxAge    time.Duration `env:"CACHE_MAX_AGE" envDefault:"0s"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	RateLimit   float64  `env:"RATE_LIMIT" envDefault:"1"`
	RateBurst   int      `env:"RATE_BURST" envDefault:"5"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the optional .env files, then the environment, and validates
// the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that depend on each other.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI is required for the mongo backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres backend")
		}
	case BackendREST:
		if c.RESTURL == "" {
			return errors.New("config: REST_URL is required for the rest backend")
		}
	default:
		return fmt.Errorf("config: unknown GATEWAY_BACKEND %q", c.Backend)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("config: RATE_LIMIT and RATE_BURST must be positive")
	}
	if c.SessionSweep <= 0 {
		return errors.New("config: SESSION_SWEEP must be positive")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

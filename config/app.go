package config

import (
	"time"

	"github.com/pkg/errors"
)

// App is the credchain runtime configuration. Every leaf can be overridden
// from the environment: RPC.URL -> RPC_URL, Database.Enabled -> DATABASE_ENABLED.
type App struct {
	Server   Server
	RPC      RPC
	Database Database
	Redis    Redis
	Log      Log
}

type Server struct {
	Addr      string
	RateLimit float64 // requests per second per client IP, 0 disables
	RateBurst int
}

type RPC struct {
	URL             string // primary endpoint, prepended to the public fallbacks
	ChainID         string // "56" mainnet, "97" testnet
	AttemptTimeout  time.Duration
	ChainIDFailover bool
}

type Database struct {
	Enabled        bool
	Driver         string // "pgx" or "sql"
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLModeDisable bool
	CertPath       string
	AutoMigrate    bool
}

type Redis struct {
	Enabled  bool
	Host     string
	Port     string
	Username string
	Password string
	DB       int
	TLS      bool
	TTL      time.Duration
}

type Log struct {
	Level       string
	Development bool
	File        string
}

const (
	DefaultAddr           = ":8080"
	DefaultChainID        = "56"
	DefaultAttemptTimeout = 5 * time.Second
	DefaultCacheTTL       = 10 * time.Minute
)

// Load reads .env (if present), then config.yaml from paths, then env vars,
// and fills defaults.
func Load(paths ...string) (*App, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := ParseConfig[App](paths)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *App) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		c.Server.RateBurst = int(c.Server.RateLimit) + 1
	}
	if c.RPC.ChainID == "" {
		c.RPC.ChainID = DefaultChainID
	}
	if c.RPC.AttemptTimeout <= 0 {
		c.RPC.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = DefaultCacheTTL
	}
}

func (c *App) Validate() error {
	switch c.Database.Driver {
	case "pgx", "sql":
	default:
		return errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Name == "") {
		return errors.New("database enabled but host or name is missing")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server rate limit must not be negative")
	}
	return nil
}

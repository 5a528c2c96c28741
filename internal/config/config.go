package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"taskadmin/admin-console/internal/dbconn"
)

// ErrConfiguration reports settings the process cannot start without.
var ErrConfiguration = errors.New("configuration error")

const configFileEnv = "CONSOLE_CONFIG_FILE"

// Config is decoded by envconfig with an empty prefix. Nested sections take
// their field name as prefix, so DB.Host reads DB_HOST.
type Config struct {
	HTTP         HTTPConfig  `yaml:"http"`
	DB           DBConfig    `yaml:"db"`
	Auth         AuthConfig  `yaml:"auth"`
	State        StateConfig `yaml:"state"`
	Log          LogConfig   `yaml:"log"`
	AuditLogFile string      `yaml:"audit_log_file" split_words:"true"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	CookieSecret    string        `yaml:"cookie_secret" split_words:"true"`
	CookieSecure    bool          `yaml:"cookie_secure" split_words:"true"`
}

// DBConfig mirrors the db section of the secrets file. Host, port, user,
// password and name are required unless the driver is sqlite3.
type DBConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"database"`
	Charset         string        `yaml:"charset"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	AutoMigrate     bool          `yaml:"auto_migrate" split_words:"true"`
}

type AuthConfig struct {
	BootstrapUsername     string        `yaml:"bootstrap_username" split_words:"true"`
	BootstrapPassword     string        `yaml:"bootstrap_password" split_words:"true"`
	BootstrapPasswordHash string        `yaml:"bootstrap_password_hash" split_words:"true"`
	BootstrapEmail        string        `yaml:"bootstrap_email" split_words:"true"`
	TokenSecret           string        `yaml:"token_secret" split_words:"true"`
	TokenTTL              time.Duration `yaml:"token_ttl" split_words:"true"`
	LegacyTokens          bool          `yaml:"legacy_tokens" split_words:"true"`
}

type StateConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr" split_words:"true"`
	RedisPassword string        `yaml:"redis_password" split_words:"true"`
	RedisDB       int           `yaml:"redis_db" split_words:"true"`
	PurgeSchedule string        `yaml:"purge_schedule" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	StateMemory = "memory"
	StateRedis  = "redis"
	StateSQL    = "sql"
)

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		DB: DBConfig{
			Driver: dbconn.DriverPostgres,
		},
		Auth: AuthConfig{
			BootstrapUsername: "admin",
			TokenTTL:          12 * time.Hour,
		},
		State: StateConfig{
			Backend:       StateSQL,
			TTL:           24 * time.Hour,
			PurgeSchedule: "@every 10m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		AuditLogFile: "./data/audit.log",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONSOLE_CONFIG_FILE when set, then the environment.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase resolves only the db section, for tools that never serve the
// console.
func LoadDatabase() (dbconn.Config, error) {
	cfg, err := load()
	if err != nil {
		return dbconn.Config{}, err
	}
	if err := cfg.validateDB(); err != nil {
		return dbconn.Config{}, err
	}
	return cfg.DBConnConfig(), nil
}

func load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file: %w", ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("%w: decode config file %s: %w", ErrConfiguration, path, err)
	}
	return nil
}

func (c Config) validateDB() error {
	if missing := c.DBConnConfig().Missing(); len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, m := range missing {
			keys[i] = "db." + m
		}
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(keys, ", "))
	}
	if _, err := dbconn.DialectFor(c.DB.Driver); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (c Config) validate() error {
	if err := c.validateDB(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("%w: HTTP_ADDR must not be empty", ErrConfiguration)
	}
	if !c.Auth.LegacyTokens && len(c.Auth.TokenSecret) < 16 {
		return fmt.Errorf("%w: AUTH_TOKEN_SECRET must be at least 16 bytes unless AUTH_LEGACY_TOKENS is set", ErrConfiguration)
	}
	if len(c.HTTP.CookieSecret) < 32 {
		return fmt.Errorf("%w: HTTP_COOKIE_SECRET must be at least 32 bytes", ErrConfiguration)
	}
	switch c.State.Backend {
	case StateMemory, StateSQL:
	case StateRedis:
		if c.State.RedisAddr == "" {
			return fmt.Errorf("%w: STATE_REDIS_ADDR is required for the redis backend", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown STATE_BACKEND %q", ErrConfiguration, c.State.Backend)
	}
	if c.State.TTL <= 0 {
		return fmt.Errorf("%w: STATE_TTL must be > 0", ErrConfiguration)
	}
	return nil
}

// DBConnConfig converts the db section for the connection manager.
func (c Config) DBConnConfig() dbconn.Config {
	return dbconn.Config{
		Driver:          c.DB.Driver,
		Host:            c.DB.Host,
		Port:            c.DB.Port,
		User:            c.DB.User,
		Password:        c.DB.Password,
		Database:        c.DB.Name,
		Charset:         c.DB.Charset,
		SSLMode:         c.DB.SSLMode,
		MaxOpenConns:    c.DB.MaxOpenConns,
		MaxIdleConns:    c.DB.MaxIdleConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
	}
}

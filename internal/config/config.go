package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transaction modes for migration application.
const (
	TxPerMigration = "per-migration"
	TxSingle       = "single"
)

// Config is the root configuration for dbinit.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Lease     LeaseConfig     `mapstructure:"lease"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// DatabaseConfig describes the target PostgreSQL database. URL, when set,
// takes precedence over the discrete fields.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	Echo     bool   `mapstructure:"echo"`
}

type BootstrapConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MigrationsTable string        `mapstructure:"migrations_table"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	TxMode          string        `mapstructure:"tx_mode"`
	AdoptAlembic    bool          `mapstructure:"adopt_alembic"`
}

// LeaseConfig configures the Redis bootstrap lease. The holder extends the
// lease every RenewInterval, so TTL only bounds how long a crashed holder
// blocks the others.
type LeaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
	RenewInterval time.Duration `mapstructure:"renew_interval"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
}

// BreakerConfig tunes the circuit breakers around the health checks.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type NotifyConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// legacyEnv maps config keys to the plain environment names the Python
// deployment used. The DBINIT_ form is always tried first.
var legacyEnv = map[string]string{
	"database.url":      "DATABASE_URL",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"database.echo":     "DB_ECHO",
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the DBINIT_ prefix (e.g. DBINIT_DATABASE_HOST).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DBINIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "DBINIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the bootstrap cannot run with.
func (c *Config) Validate() error {
	if c.Bootstrap.MaxAttempts < 1 {
		return fmt.Errorf("bootstrap.max_attempts must be at least 1, got %d", c.Bootstrap.MaxAttempts)
	}
	if c.Bootstrap.RetryDelay < 0 {
		return fmt.Errorf("bootstrap.retry_delay must not be negative")
	}
	switch c.Bootstrap.TxMode {
	case TxPerMigration, TxSingle:
	default:
		return fmt.Errorf("bootstrap.tx_mode must be %q or %q, got %q", TxPerMigration, TxSingle, c.Bootstrap.TxMode)
	}
	if c.Bootstrap.MigrationsTable == "" {
		return fmt.Errorf("bootstrap.migrations_table must not be empty")
	}
	if c.Lease.Enabled {
		if c.Lease.RenewInterval <= 0 {
			return fmt.Errorf("lease.renew_interval must be positive, got %s", c.Lease.RenewInterval)
		}
		if c.Lease.TTL <= c.Lease.RenewInterval {
			return fmt.Errorf("lease.ttl (%s) must be greater than lease.renew_interval (%s)", c.Lease.TTL, c.Lease.RenewInterval)
		}
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.OpenTimeout <= 0 {
		return fmt.Errorf("breaker.open_timeout must be positive, got %s", c.Breaker.OpenTimeout)
	}
	return nil
}

// DSN returns the connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Endpoint is a password-free description of the target, safe for logs.
func (d DatabaseConfig) Endpoint() string {
	if d.URL != "" {
		return "database.url"
	}
	return fmt.Sprintf("%s at %s:%d", d.Name, d.Host, d.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "classroom-dbinit")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "interactive_classroom")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.echo", false)

	v.SetDefault("bootstrap.max_attempts", 5)
	v.SetDefault("bootstrap.retry_delay", 2*time.Second)
	v.SetDefault("bootstrap.attempt_timeout", 5*time.Second)
	v.SetDefault("bootstrap.timeout", 5*time.Minute)
	v.SetDefault("bootstrap.migrations_table", "schema_migrations")
	v.SetDefault("bootstrap.migrations_dir", "")
	v.SetDefault("bootstrap.tx_mode", TxPerMigration)
	v.SetDefault("bootstrap.adopt_alembic", true)

	v.SetDefault("lease.enabled", false)
	v.SetDefault("lease.key", "classroom:dbinit:lease")
	v.SetDefault("lease.ttl", 2*time.Minute)
	v.SetDefault("lease.renew_interval", 30*time.Second)
	v.SetDefault("lease.host", "localhost")
	v.SetDefault("lease.port", 6379)
	v.SetDefault("lease.password", "")
	v.SetDefault("lease.db", 0)

	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject", "classroom.db.ready")

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
}

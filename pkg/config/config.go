package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SUNROAD_DB_DSN"
	EnvDBHost = "SUNROAD_DB_HOST"
	EnvDBUser = "SUNROAD_DB_USER"
	EnvDBName = "SUNROAD_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Revalidate   RevalidateConfig
	Admin        AdminConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUNROAD_APP_ENV" required:"true"`
	Port         string `envconfig:"SUNROAD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUNROAD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUNROAD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SUNROAD_DB_DSN"`
	Driver string `envconfig:"SUNROAD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUNROAD_DB_HOST"`
	LegacyPort     int    `envconfig:"SUNROAD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUNROAD_DB_USER"`
	LegacyPassword string `envconfig:"SUNROAD_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUNROAD_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUNROAD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUNROAD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUNROAD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUNROAD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUNROAD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUNROAD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUNROAD_REDIS_ADDR"`
	Password     string        `envconfig:"SUNROAD_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUNROAD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUNROAD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUNROAD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUNROAD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUNROAD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUNROAD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"SUNROAD_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"SUNROAD_STRIPE_WEBHOOK_SECRET"`
	Mode          string `envconfig:"SUNROAD_STRIPE_MODE" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	mode := strings.TrimSpace(strings.ToLower(s.Mode))
	if mode == "" {
		return "test"
	}
	return mode
}

type RevalidateConfig struct {
	URL            string        `envconfig:"SUNROAD_REVALIDATE_URL"`
	Secret         string        `envconfig:"SUNROAD_REVALIDATE_SECRET"`
	Timeout        time.Duration `envconfig:"SUNROAD_REVALIDATE_TIMEOUT" default:"3s"`
	HandleCacheTTL time.Duration `envconfig:"SUNROAD_REVALIDATE_HANDLE_CACHE_TTL" default:"10m"`
}

type AdminConfig struct {
	Secret string `envconfig:"SUNROAD_ADMIN_SECRET"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SUNROAD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SUNROAD_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "TORQUEHUB"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "TORQUEHUB_APP_ENV"
	EnvDBDSN  = "TORQUEHUB_DB_DSN"
	EnvDBHost = "TORQUEHUB_DB_HOST"
	EnvDBUser = "TORQUEHUB_DB_USER"
	EnvDBName = "TORQUEHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Gateway       GatewayConfig
	Marketplace   MarketplaceConfig
	AuthRateLimit AuthRateLimitConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TORQUEHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"TORQUEHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TORQUEHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TORQUEHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TORQUEHUB_DB_DSN"`
	Driver string `envconfig:"TORQUEHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TORQUEHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"TORQUEHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TORQUEHUB_DB_USER"`
	LegacyPassword string `envconfig:"TORQUEHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"TORQUEHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"TORQUEHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TORQUEHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TORQUEHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TORQUEHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TORQUEHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TORQUEHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TORQUEHUB_REDIS_ADDR"`
	Password     string        `envconfig:"TORQUEHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"TORQUEHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TORQUEHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TORQUEHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TORQUEHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TORQUEHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TORQUEHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TORQUEHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TORQUEHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TORQUEHUB_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TORQUEHUB_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TORQUEHUB_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TORQUEHUB_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TORQUEHUB_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TORQUEHUB_ARGON_KEY_LEN" default:"32"`
}

// GatewayConfig configures the external payment gateway adapter.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"TORQUEHUB_GATEWAY_BASE_URL" default:"https://api.gateway.test"`
	KeyID         string        `envconfig:"TORQUEHUB_GATEWAY_KEY_ID" required:"true"`
	KeySecret     string        `envconfig:"TORQUEHUB_GATEWAY_KEY_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"TORQUEHUB_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Currency      string        `envconfig:"TORQUEHUB_GATEWAY_CURRENCY" default:"INR"`
	HTTPTimeout   time.Duration `envconfig:"TORQUEHUB_GATEWAY_HTTP_TIMEOUT" default:"10s"`
}

// AuthRateLimitConfig throttles the credential endpoints per source IP and
// per submitted email.
type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"TORQUEHUB_AUTH_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit    int           `envconfig:"TORQUEHUB_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit int           `envconfig:"TORQUEHUB_AUTH_LOGIN_EMAIL_LIMIT" default:"5"`
}

// MarketplaceConfig carries the read-only business settings injected into
// the domain services. Never mutated after Load.
type MarketplaceConfig struct {
	CommissionPercent     decimal.Decimal `envconfig:"TORQUEHUB_COMMISSION_PERCENT" default:"0"`
	PlatformAccountID     string          `envconfig:"TORQUEHUB_PLATFORM_ACCOUNT_ID"`
	DefaultRadiusKM       float64         `envconfig:"TORQUEHUB_DISPATCH_DEFAULT_RADIUS_KM" default:"25"`
	RecentBroadcastLimit  int             `envconfig:"TORQUEHUB_DISPATCH_RECENT_BROADCASTS" default:"10"`
	WebhookIdempotencyTTL time.Duration   `envconfig:"TORQUEHUB_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

func (m MarketplaceConfig) validate() error {
	if m.CommissionPercent.IsNegative() || m.CommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("commission percent must be within [0,100]")
	}
	if m.RecentBroadcastLimit < 0 {
		return fmt.Errorf("recent broadcast limit must be non-negative")
	}
	if m.CommissionPercent.IsPositive() && m.PlatformAccountID == "" {
		return fmt.Errorf("platform account id required when commission is set")
	}
	return nil
}

// PlatformAccount parses the configured platform wallet owner, or uuid.Nil
// when commissions are disabled.
func (m MarketplaceConfig) PlatformAccount() uuid.UUID {
	id, err := uuid.Parse(m.PlatformAccountID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TORQUEHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TORQUEHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TORQUEHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TORQUEHUB_PUBSUB_DOMAIN_TOPIC" default:"th-domain-events"`
	DomainSubscription string `envconfig:"TORQUEHUB_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TORQUEHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TORQUEHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TORQUEHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TORQUEHUB_AUTO_MIGRATE" default:"false"`
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

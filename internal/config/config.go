package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Nesting  NestingConfig  `mapstructure:"nesting"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // gorm logger: silent, error, warn, info
}

// DSN is the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"` // takes precedence over the discrete fields
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

// AMQPURL returns the broker URL.
func (c RabbitMQConfig) AMQPURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + strings.TrimPrefix(c.VHost, "/"),
	}
	return u.String()
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type NestingConfig struct {
	Spacing float64 `mapstructure:"spacing"` // gap between pieces on a sheet
}

// BillingConfig seeds the tenant's design rate on first start. A stored rate is never overwritten.
type BillingConfig struct {
	TenantID             string  `mapstructure:"tenant_id"`
	FirstHourPrice       float64 `mapstructure:"first_hour_price"`
	AdditionalHourPrice  float64 `mapstructure:"additional_hour_price"`
	FreeRevisions        int     `mapstructure:"free_revisions"`
	AutoBilling          bool    `mapstructure:"auto_billing"`
	DesignLaborProductID string  `mapstructure:"design_labor_product_id"`
	FallbackTaxRate      float64 `mapstructure:"fallback_tax_rate"`
}

type LedgerConfig struct {
	Backend    string          `mapstructure:"backend"` // amqp or log
	Exchange   string          `mapstructure:"exchange"`
	RoutingKey string          `mapstructure:"routing_key"`
	Accounts   ledger.Accounts `mapstructure:"accounts"`
}

type NotifyConfig struct {
	SSE         bool   `mapstructure:"sse"`
	AMQP        bool   `mapstructure:"amqp"`
	Redis       bool   `mapstructure:"redis"`
	Exchange    string `mapstructure:"exchange"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	Buffer      int    `mapstructure:"buffer"`
	Locale      string `mapstructure:"locale"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no file: defaults and environment only
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nimo")
	v.SetDefault("database.dbname", "nimo_mes")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")

	v.SetDefault("minio.bucket", "mes-artwork")

	v.SetDefault("jwt.issuer", "nimo-mes")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("nesting.spacing", 0.5)

	v.SetDefault("billing.tenant_id", "default")

	v.SetDefault("ledger.backend", "log")
	v.SetDefault("ledger.exchange", "accounting_topic")
	v.SetDefault("ledger.routing_key", "journal.mes.entry")
	v.SetDefault("ledger.accounts.receivable", ledger.DefaultAccounts.Receivable)
	v.SetDefault("ledger.accounts.design_revenue", ledger.DefaultAccounts.DesignRevenue)
	v.SetDefault("ledger.accounts.tax_payable", ledger.DefaultAccounts.TaxPayable)
	v.SetDefault("ledger.accounts.scrap_expense", ledger.DefaultAccounts.ScrapExpense)
	v.SetDefault("ledger.accounts.inventory_asset", ledger.DefaultAccounts.InventoryAsset)

	v.SetDefault("notify.sse", true)
	v.SetDefault("notify.exchange", "mes_notifications_fanout")
	v.SetDefault("notify.redis_prefix", "mes")
	v.SetDefault("notify.buffer", 256)
	v.SetDefault("notify.locale", "en")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// RabbitMQ
	v.BindEnv("rabbitmq.url", "RABBITMQ_URL")
	v.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	v.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	v.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	v.BindEnv("rabbitmq.password", "RABBITMQ_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Billing
	v.BindEnv("billing.first_hour_price", "BILLING_FIRST_HOUR_PRICE")
	v.BindEnv("billing.additional_hour_price", "BILLING_ADDITIONAL_HOUR_PRICE")
	v.BindEnv("billing.free_revisions", "BILLING_FREE_REVISIONS")
	v.BindEnv("billing.auto_billing", "BILLING_AUTO")
}

// GetEnvOrDefault returns the environment variable or defaultValue when it is unset.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

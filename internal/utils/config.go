package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	ServerPort string
	Store      StoreConfig
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	LLM        LLMConfig
}

type StoreConfig struct {
	Backend  string
	BoltPath string
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// LLMConfig selects and configures the text-completion provider.
type LLMConfig struct {
	Provider    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	OpenAI      ProviderConfig
	Anthropic   ProviderConfig
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Active returns the settings of the selected provider.
func (c LLMConfig) Active() ProviderConfig {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic
	}
	return c.OpenAI
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "console")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_CALLER", false)
	v.SetDefault("SERVICE_NAME", "lovelens-server")

	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("BOLT_PATH", "data/lovelens.bolt")

	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "lovelens")
	v.SetDefault("POSTGRES_MAX_CONNS", 8)
	v.SetDefault("POSTGRES_MIN_CONNS", 1)
	v.SetDefault("POSTGRES_MAX_CONN_LIFETIME", time.Hour)
	v.SetDefault("POSTGRES_MAX_CONN_IDLE", 30*time.Minute)
	v.SetDefault("POSTGRES_HEALTH_CHECK_PERIOD", time.Minute)
	v.SetDefault("POSTGRES_CONNECT_TIMEOUT", 5*time.Second)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "lovelens")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", 5*time.Second)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 1024)
	v.SetDefault("LLM_TIMEOUT", 60*time.Second)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_BASE_URL", "")
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-7-sonnet-latest")
}

// LoadConfig reads configuration from the environment, optionally layered over a
// config file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		ServerPort: v.GetString("PORT"),
		Store: StoreConfig{
			Backend:  strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
			BoltPath: v.GetString("BOLT_PATH"),
		},
		Postgres: PostgresConfig{
			DSN:               v.GetString("POSTGRES_DSN"),
			Host:              v.GetString("POSTGRES_HOST"),
			Port:              v.GetInt("POSTGRES_PORT"),
			User:              v.GetString("POSTGRES_USER"),
			Password:          v.GetString("POSTGRES_PASSWORD"),
			Database:          v.GetString("POSTGRES_DB"),
			MaxConns:          v.GetInt32("POSTGRES_MAX_CONNS"),
			MinConns:          v.GetInt32("POSTGRES_MIN_CONNS"),
			MaxConnLifetime:   v.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:   v.GetDuration("POSTGRES_MAX_CONN_IDLE"),
			HealthCheckPeriod: v.GetDuration("POSTGRES_HEALTH_CHECK_PERIOD"),
			ConnectTimeout:    v.GetDuration("POSTGRES_CONNECT_TIMEOUT"),
		},
		Mongo: MongoConfig{
			URI:            v.GetString("MONGO_URI"),
			Database:       v.GetString("MONGO_DATABASE"),
			ConnectTimeout: v.GetDuration("MONGO_CONNECT_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(v.GetString("LOG_LEVEL")),
			Encoding:     strings.ToLower(v.GetString("LOG_ENCODING")),
			Development:  v.GetBool("LOG_DEVELOPMENT"),
			EnableCaller: v.GetBool("LOG_CALLER"),
			ServiceName:  v.GetString("SERVICE_NAME"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
			Temperature: v.GetFloat64("LLM_TEMPERATURE"),
			MaxTokens:   v.GetInt("LLM_MAX_TOKENS"),
			Timeout:     v.GetDuration("LLM_TIMEOUT"),
			OpenAI: ProviderConfig{
				APIKey:  v.GetString("OPENAI_API_KEY"),
				BaseURL: strings.TrimRight(v.GetString("OPENAI_BASE_URL"), "/"),
				Model:   v.GetString("OPENAI_MODEL"),
			},
			Anthropic: ProviderConfig{
				APIKey:  v.GetString("ANTHROPIC_API_KEY"),
				BaseURL: strings.TrimRight(v.GetString("ANTHROPIC_BASE_URL"), "/"),
				Model:   v.GetString("ANTHROPIC_MODEL"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects unknown backend and provider names.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreMongo, StoreRedis:
	case StoreBolt:
		if strings.TrimSpace(c.Store.BoltPath) == "" {
			errs = append(errs, "BOLT_PATH is required for the bolt store")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("LLM_TEMPERATURE %v out of range [0, 2]", c.LLM.Temperature))
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}

	return nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Metrics       MetricsConfig
	Mutations     MutationsConfig
	Broker        BrokerConfig
	Cart          CartConfig
	Kampioenschap KampioenschapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig controls the Prometheus listener of the mutation worker.
type MetricsConfig struct {
	WorkerAddr string
}

// MutationsConfig tunes the background processors and the near-synchronous wait of the API.
type MutationsConfig struct {
	CompetitionPoll time.Duration
	CartPoll        time.Duration
	StopMargin      time.Duration
	StopMinute      int
	WaitBudget      time.Duration
	WaitInitial     time.Duration
	UseRedisPing    bool
}

// BrokerConfig points the task notifier at RabbitMQ. An empty URL disables publishing.
type BrokerConfig struct {
	URL       string
	TaskQueue string
}

// CartConfig holds cart and checkout settings.
type CartConfig struct {
	CountInterval    time.Duration
	FederationClubID int64
}

// KampioenschapConfig holds federation roster rules.
type KampioenschapConfig struct {
	RosterCap    int
	DefaultLimit int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Deployments configure through the environment only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		AllowedHeaders: splitAndTrim(v.GetString("ALLOWED_HEADERS")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{
		WorkerAddr: v.GetString("WORKER_METRICS_ADDR"),
	}

	cfg.Mutations = MutationsConfig{
		CompetitionPoll: parseDuration(v.GetString("MUTATIONS_COMPETITION_POLL"), 3*time.Second),
		CartPoll:        parseDuration(v.GetString("MUTATIONS_CART_POLL"), 5*time.Second),
		StopMargin:      parseDuration(v.GetString("MUTATIONS_STOP_MARGIN"), 15*time.Second),
		StopMinute:      v.GetInt("MUTATIONS_STOP_MINUTE"),
		WaitBudget:      parseDuration(v.GetString("MUTATIONS_WAIT_BUDGET"), 3*time.Second),
		WaitInitial:     parseDuration(v.GetString("MUTATIONS_WAIT_INITIAL"), 200*time.Millisecond),
		UseRedisPing:    v.GetBool("MUTATIONS_REDIS_PING"),
	}

	cfg.Broker = BrokerConfig{
		URL:       v.GetString("RABBITMQ_URL"),
		TaskQueue: v.GetString("RABBITMQ_TASK_QUEUE"),
	}

	cfg.Cart = CartConfig{
		CountInterval:    parseDuration(v.GetString("CART_COUNT_INTERVAL"), time.Minute),
		FederationClubID: v.GetInt64("FEDERATION_CLUB_ID"),
	}

	cfg.Kampioenschap = KampioenschapConfig{
		RosterCap:    v.GetInt("KAMP_ROSTER_CAP"),
		DefaultLimit: v.GetInt("KAMP_DEFAULT_LIMIT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nhb_competitie")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "nhb:")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-ID")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKER_METRICS_ADDR", ":9102")

	v.SetDefault("MUTATIONS_COMPETITION_POLL", "3s")
	v.SetDefault("MUTATIONS_CART_POLL", "5s")
	v.SetDefault("MUTATIONS_STOP_MARGIN", "15s")
	v.SetDefault("MUTATIONS_STOP_MINUTE", -1)
	v.SetDefault("MUTATIONS_WAIT_BUDGET", "3s")
	v.SetDefault("MUTATIONS_WAIT_INITIAL", "200ms")
	v.SetDefault("MUTATIONS_REDIS_PING", true)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_TASK_QUEUE", "taken.nieuw")

	v.SetDefault("CART_COUNT_INTERVAL", "1m")
	v.SetDefault("FEDERATION_CLUB_ID", 1368)

	v.SetDefault("KAMP_ROSTER_CAP", 48)
	v.SetDefault("KAMP_DEFAULT_LIMIT", 24)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"coldreach/models"
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	BaseURL     string `json:"base_url"` // public URL for tracking links

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`

	EncryptionKey string `json:"-"`
	TrackingKey   string `json:"-"` // HMAC/JWT secret for pixel, click, unsubscribe tokens
	SentryDSN     string `json:"-"`

	Google    OAuthConfig `json:"google"`
	Microsoft OAuthConfig `json:"microsoft"`

	// Worker timing
	TickInterval       time.Duration `json:"tick_interval"`
	MaxParallelSenders int           `json:"max_parallel_senders"`
}

func init() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "coldreach"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		TrackingKey:   getEnv("TRACKING_KEY", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		Microsoft: OAuthConfig{
			ClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
			ClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		},

		TickInterval:       time.Duration(getEnvAsInt("TICK_INTERVAL_SECONDS", 60)) * time.Second,
		MaxParallelSenders: getEnvAsInt("MAX_PARALLEL_SENDERS", 5),
	}

	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.TrackingKey == "" {
		cfg.TrackingKey = cfg.EncryptionKey
	}

	return cfg, nil
}

// ConnectDB opens the postgres connection and runs migrations. The handle
// is returned rather than stored in a package global so workers and
// handlers receive it explicitly.
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	logrus.WithField("dsn", maskPassword(dsn)).Info("connecting to database")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := migrateDB(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return db, nil
}

// ConnectRedis returns a redis client, or nil when redis is not configured.
// Callers treat a nil client as cache-disabled.
func ConnectRedis(cfg *Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.EmailAccount{},
		&models.Campaign{},
		&models.SequenceStep{},
		&models.Contact{},
		&models.SentEmail{},
		&models.ReceivedEmail{},
		&models.PersonalizationLog{},
		&models.ActivityLog{},
	)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const marker = "password="
	start := strings.Index(dsn, marker)
	if start == -1 {
		return dsn
	}
	start += len(marker)
	end := strings.IndexAny(dsn[start:], " ")
	if end == -1 {
		return dsn[:start] + "*****"
	}
	return dsn[:start] + "*****" + dsn[start+end:]
}

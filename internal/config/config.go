package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Storage   StorageConfig   `yaml:"storage"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Auth      AuthConfig      `yaml:"auth"`
	Grader    GraderConfig    `yaml:"grader"`
	Generator GeneratorConfig `yaml:"generator"`
	Promotion PromotionConfig `yaml:"promotion"`
	Vault     VaultConfig     `yaml:"vault"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr    string        `yaml:"addr"`
	FormTTL time.Duration `yaml:"form_ttl"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig selects the submission store: "mongo" or "postgres"
type StorageConfig struct {
	Submissions string `yaml:"submissions"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type AuthConfig struct {
	CreatorUsername string        `yaml:"creator_username"`
	CreatorPassword string        `yaml:"creator_password"`
	JWTSecret       string        `yaml:"-"` // env only
	TokenTTL        time.Duration `yaml:"token_ttl"`
}

// PromotionConfig holds the Roblox endpoint and the fallbacks used when a
// form or submission does not name a group, membership or role
type PromotionConfig struct {
	BaseURL             string        `yaml:"base_url"`
	DefaultGroupID      int64         `yaml:"default_group_id"`
	DefaultMembershipID int64         `yaml:"default_membership_id"`
	DefaultRoleID       int64         `yaml:"default_role_id"`
	Timeout             time.Duration `yaml:"timeout"`
}

type VaultConfig struct {
	Addr      string        `yaml:"addr"`
	Token     string        `yaml:"-"` // env only
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ScoringConfig holds scoring defaults and per-submission limits
type ScoringConfig struct {
	PointsPerCorrect    float64 `yaml:"points_per_correct"`
	PenaltyPerIncorrect float64 `yaml:"penalty_per_incorrect"`
	MaxShortAnswers     int     `yaml:"max_short_answers"`
	MaxAnswerLength     int     `yaml:"max_answer_length"`
	GradingConcurrency  int     `yaml:"grading_concurrency"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
	AllowedMethods string `yaml:"allowed_methods"`
	AllowedHeaders string `yaml:"allowed_headers"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", ShutdownTimeout: 30 * time.Second},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "astapp",
		},
		Redis:    RedisConfig{Addr: "localhost:6379", FormTTL: 10 * time.Minute},
		Storage:  StorageConfig{Submissions: "mongo"},
		RabbitMQ: RabbitMQConfig{Exchange: "submission-events"},
		Auth: AuthConfig{
			CreatorUsername: "admin",
			CreatorPassword: "password123",
			JWTSecret:       "super-secret-key-change-in-production",
			TokenTTL:        24 * time.Hour,
		},
		Grader:    DefaultGraderConfig(),
		Generator: DefaultGeneratorConfig(),
		Promotion: PromotionConfig{
			BaseURL: "https://apis.roblox.com",
			Timeout: 10 * time.Second,
		},
		Vault: VaultConfig{
			Addr:      "http://127.0.0.1:8200",
			KeyPrefix: "secret/data/roblox_keys/",
			Timeout:   10 * time.Second,
		},
		Scoring: ScoringConfig{
			PointsPerCorrect:    5,
			PenaltyPerIncorrect: 1,
			MaxShortAnswers:     3,
			MaxAnswerLength:     300,
			GradingConcurrency:  3,
		},
		Logging: LoggingConfig{Level: "info"},
		CORS: CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET, POST, PUT, DELETE, OPTIONS",
			AllowedHeaders: "Content-Type, Authorization",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence (environment wins)
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Submissions {
	case "mongo":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("storage.submissions is postgres but no postgres dsn is set")
		}
	default:
		return fmt.Errorf("unknown submission store %q", c.Storage.Submissions)
	}
	if c.Grader.MaxAttempts < 1 {
		return fmt.Errorf("grader max_attempts must be at least 1")
	}
	if c.Scoring.GradingConcurrency < 1 {
		c.Scoring.GradingConcurrency = 1
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Mongo.URI = getEnvOrDefault("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnvOrDefault("MONGO_DATABASE", c.Mongo.Database)

	// Remove redis:// prefix if present
	c.Redis.Addr = strings.TrimPrefix(getEnvOrDefault("REDIS_URI", c.Redis.Addr), "redis://")
	c.Redis.FormTTL = getEnvDuration("REDIS_FORM_TTL", c.Redis.FormTTL)

	c.Postgres.DSN = getEnvOrDefault("POSTGRES_DSN", c.Postgres.DSN)
	c.Storage.Submissions = getEnvOrDefault("SUBMISSION_STORE", c.Storage.Submissions)
	c.RabbitMQ.URL = getEnvOrDefault("RABBITMQ_URL", c.RabbitMQ.URL)
	c.RabbitMQ.Exchange = getEnvOrDefault("RABBITMQ_EXCHANGE", c.RabbitMQ.Exchange)

	c.Auth.CreatorUsername = getEnvOrDefault("CREATOR_USERNAME", c.Auth.CreatorUsername)
	c.Auth.CreatorPassword = getEnvOrDefault("CREATOR_PASSWORD", c.Auth.CreatorPassword)
	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)

	c.Grader.applyEnvOverrides()
	c.Generator.applyEnvOverrides()

	c.Promotion.BaseURL = getEnvOrDefault("ROBLOX_API_BASE_URL", c.Promotion.BaseURL)
	c.Promotion.DefaultGroupID = getEnvInt64("ROBLOX_DEFAULT_GROUP_ID", c.Promotion.DefaultGroupID)
	c.Promotion.DefaultMembershipID = getEnvInt64("ROBLOX_DEFAULT_MEMBERSHIP_ID", c.Promotion.DefaultMembershipID)
	c.Promotion.DefaultRoleID = getEnvInt64("ROBLOX_DEFAULT_ROLE_ID", c.Promotion.DefaultRoleID)

	c.Vault.Addr = getEnvOrDefault("VAULT_ADDR", c.Vault.Addr)
	c.Vault.Token = getEnvOrDefault("VAULT_TOKEN", c.Vault.Token)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)

	c.CORS.AllowedOrigins = getEnvOrDefault("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getEnvOrDefault("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getEnvOrDefault("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("500ms") or plain seconds ("0.5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

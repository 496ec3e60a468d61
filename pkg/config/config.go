package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	GigaChat GigaChatConfig
	Chat     ChatConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Breaker  BreakerConfig
	Metrics  MetricsConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string `validate:"oneof=debug info warn error dpanic panic fatal"`
}

type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LLMConfig describes the inference server the chat talks to.
type LLMConfig struct {
	Provider       string  `validate:"oneof=lmstudio gigachat"`
	BaseURL        string  `validate:"required,url"`
	Model          string
	Temperature    float64 `validate:"gte=0,lte=2"`
	MaxTokens      int     `validate:"gte=-1"`
	RequestTimeout time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

type ChatConfig struct {
	// MaxRecallDepth bounds how many recall round trips one user message may cause.
	MaxRecallDepth int `validate:"gte=0"`
}

type StorageConfig struct {
	Backend    string `validate:"oneof=file postgres sqlite"`
	FilePath   string
	SQLitePath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AuthConfig struct {
	Enabled      bool
	JWTSecret    string `validate:"required_if=Enabled true"`
	PasswordHash string `validate:"required_if=Enabled true"`
	TokenTTL     time.Duration
}

type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64 `validate:"gt=0,lte=1"`
	MinRequests  uint32
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root.
	// Plain environment variables work without one (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "0"))
	temperature, _ := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.7"), 64)
	maxTokens, _ := strconv.Atoi(getEnv("LLM_MAX_TOKENS", "-1"))
	requestTimeout, _ := strconv.Atoi(getEnv("LLM_REQUEST_TIMEOUT", "300"))
	recallDepth, _ := strconv.Atoi(getEnv("CHAT_MAX_RECALL_DEPTH", "5"))
	tokenTTL, _ := strconv.Atoi(getEnv("AUTH_TOKEN_TTL_HOURS", "24"))
	breakerMax, _ := strconv.Atoi(getEnv("BREAKER_MAX_REQUESTS", "5"))
	breakerInterval, _ := strconv.Atoi(getEnv("BREAKER_INTERVAL", "30"))
	breakerTimeout, _ := strconv.Atoi(getEnv("BREAKER_TIMEOUT", "60"))
	breakerRatio, _ := strconv.ParseFloat(getEnv("BREAKER_FAILURE_RATIO", "0.8"), 64)
	breakerMin, _ := strconv.Atoi(getEnv("BREAKER_MIN_REQUESTS", "5"))

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "lmstudio"),
			BaseURL:        getEnv("LM_STUDIO_URL", "http://localhost:1234"),
			Model:          getEnv("LLM_MODEL", ""),
			Temperature:    temperature,
			MaxTokens:      maxTokens,
			RequestTimeout: time.Duration(requestTimeout) * time.Second,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true",
		},
		Chat: ChatConfig{
			MaxRecallDepth: recallDepth,
		},
		Storage: StorageConfig{
			Backend:    getEnv("STORAGE_BACKEND", "file"),
			FilePath:   getEnv("STORAGE_FILE_PATH", "data/memory-store.json"),
			SQLitePath: getEnv("STORAGE_SQLITE_PATH", "data/memchat.db"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "memchat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			Enabled:      getEnv("AUTH_ENABLED", "false") == "true",
			JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			PasswordHash: getEnv("AUTH_PASSWORD_HASH", ""),
			TokenTTL:     time.Duration(tokenTTL) * time.Hour,
		},
		Breaker: BreakerConfig{
			MaxRequests:  uint32(breakerMax),
			Interval:     time.Duration(breakerInterval) * time.Second,
			Timeout:      time.Duration(breakerTimeout) * time.Second,
			FailureRatio: breakerRatio,
			MinRequests:  uint32(breakerMin),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnv("METRICS_ENABLED", "true") == "true",
			Namespace: getEnv("METRICS_NAMESPACE", "memchat"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

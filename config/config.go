package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig

	// Database configurations
	DbUser     string
	DbPassword string
	DbHost     string
	DbPort     string
	DbName     string
	DbSSLMode  string

	// Redis configurations
	RedisURL      string
	RedisUsername string
	RedisPassword string

	// OpenAI configurations
	OpenAIModel string

	// Worker pool configurations
	Workers WorkerConfig

	// Application configurations
	AppEnv      string
	LogLevel    string
	StoragePath string
}

// ServerConfig holds server-related configurations
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// WorkerConfig holds analysis worker pool configurations
type WorkerConfig struct {
	Count            int
	JobGraceMinutes  int // how long terminal jobs stay queryable
	ChunkTokenBudget int // max tokens per analysis chunk
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_READ_TIMEOUT", 15)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	viper.SetDefault("SERVER_IDLE_TIMEOUT", 60)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "epsbot")
	viper.SetDefault("DB_NAME", "epsbot")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("WORKER_COUNT", 3)
	viper.SetDefault("JOB_GRACE_MINUTES", 5)
	viper.SetDefault("CHUNK_TOKEN_BUDGET", 6000)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORAGE_PATH", "uploads")
	viper.SetDefault("APP_ENV", "development")

	return &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			ReadTimeout:  viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetInt("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetInt("SERVER_IDLE_TIMEOUT"),
		},

		DbUser:     viper.GetString("DB_USER"),
		DbPassword: viper.GetString("DB_PASSWORD"),
		DbHost:     viper.GetString("DB_HOST"),
		DbPort:     viper.GetString("DB_PORT"),
		DbName:     viper.GetString("DB_NAME"),
		DbSSLMode:  viper.GetString("DB_SSLMODE"),

		RedisURL:      viper.GetString("REDIS_URL"),
		RedisUsername: viper.GetString("REDIS_USERNAME"),
		RedisPassword: viper.GetString("REDIS_PASSWORD"),

		OpenAIModel: viper.GetString("OPENAI_MODEL"),

		Workers: WorkerConfig{
			Count:            viper.GetInt("WORKER_COUNT"),
			JobGraceMinutes:  viper.GetInt("JOB_GRACE_MINUTES"),
			ChunkTokenBudget: viper.GetInt("CHUNK_TOKEN_BUDGET"),
		},

		AppEnv:      viper.GetString("APP_ENV"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		StoragePath: viper.GetString("STORAGE_PATH"),
	}
}

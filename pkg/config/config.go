package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
}

type Config struct {
	HTTPAddr     string
	StoreBackend string
	DB           *DBConfig

	// RedisAddr enables the transaction-completed publisher when set.
	RedisAddr          string
	TxCompletedChannel string
}

func Load() (*Config, error) {
	// config.env is optional: the memory backend needs nothing from it.
	_ = godotenv.Load(filepath.Join("config.env"))

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreBackend:       getEnv("STORE_BACKEND", BackendMemory),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		TxCompletedChannel: getEnv("TX_COMPLETED_CHANNEL", "transaction-completed"),
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		db, err := loadDBConfig()
		if err != nil {
			return nil, err
		}
		cfg.DB = db
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND: %s", cfg.StoreBackend)
	}

	return cfg, nil
}

func loadDBConfig() (*DBConfig, error) {
	port, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	return &DBConfig{
		Host:         os.Getenv("DB_HOST"),
		Port:         port,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

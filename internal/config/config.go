// Package config содержит логику чтения конфигурации кассы обмена валют.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultStorePath  = "data/counter.db"
	defaultAlgorithm  = "bcrypt"
	defaultLogLevel   = "info"
)

// DotEnvFile указывает файл с переменными окружения, читаемый при наличии.
var DotEnvFile = ".env"

// Config содержит параметры конфигурации кассы.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	StorePath         string `env:"STORE_PATH"`
	SessionSecret     string `env:"SESSION_SECRET"`
	PasswordAlgorithm string `env:"PASSWORD_ALGORITHM"`
	LogLevel          string `env:"LOG_LEVEL"`
}

// UsePostgres сообщает, задан ли адрес PostgreSQL. Иначе данные хранятся в SQLite.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURI != ""
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения приоритетнее флагов. Значения из .env не перекрывают
// уже заданные переменные окружения.
func Parse() (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL URI; SQLite is used when empty")
	flag.StringVar(&cfg.StorePath, "s", defaultStorePath, "SQLite database file")
	flag.StringVar(&cfg.SessionSecret, "k", "", "session signing key; random per process when empty")
	flag.StringVar(&cfg.PasswordAlgorithm, "p", defaultAlgorithm, "PIN hashing algorithm: bcrypt or argon2id")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.StorePath, fromEnv.StorePath)
	override(&cfg.SessionSecret, fromEnv.SessionSecret)
	override(&cfg.PasswordAlgorithm, fromEnv.PasswordAlgorithm)
	override(&cfg.LogLevel, fromEnv.LogLevel)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

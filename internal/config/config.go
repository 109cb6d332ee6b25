package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	QuizAPIURL   string `yaml:"quiz_api_url"`
	QuizAPIKey   string `yaml:"quiz_api_key"`
	QuizModel    string `yaml:"quiz_model"`
	QuizPoolSize int    `yaml:"quiz_pool_size"`

	StockfishPath      string `yaml:"stockfish_path"`
	MaxConcurrentGames int    `yaml:"max_concurrent_games"`

	AnalysisDepth   int `yaml:"analysis_depth"`
	AnalysisWorkers int `yaml:"analysis_workers"`
}

// Load reads an optional YAML file named by CONFIG_FILE, then applies
// environment overrides. REDIS_URL is required.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		QuizModel:          "llama3",
		QuizPoolSize:       5,
		MaxConcurrentGames: 200,
		AnalysisDepth:      12,
		AnalysisWorkers:    1,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("QUIZ_API_URL")); v != "" {
		cfg.QuizAPIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("QUIZ_API_KEY")); v != "" {
		cfg.QuizAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QUIZ_MODEL")); v != "" {
		cfg.QuizModel = v
	}
	if v := strings.TrimSpace(os.Getenv("QUIZ_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QuizPoolSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisWorkers = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

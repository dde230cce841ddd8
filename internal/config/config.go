package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey          string
	ProviderURL         string
	LedgerURL           string
	ComputeURL          string
	DBPath              string
	ServerPort          string
	LogLevel            string
	AnalysisRetryFailed bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:          getEnv("RIOT_API_KEY", ""),
		ProviderURL:         getEnv("PROVIDER_URL", "https://api.riotgames.com"),
		LedgerURL:           getEnv("LEDGER_URL", ""),
		ComputeURL:          getEnv("COMPUTE_URL", ""),
		DBPath:              getEnv("DB_PATH", "dashboard.db"),
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		AnalysisRetryFailed: getEnvBool("ANALYSIS_RETRY_FAILED", false),
	}

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.LedgerURL == "" {
		return nil, fmt.Errorf("LEDGER_URL is required")
	}
	if cfg.ComputeURL == "" {
		return nil, fmt.Errorf("COMPUTE_URL is required")
	}

	logger.Info().
		Str("provider_url", cfg.ProviderURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("analysis_retry_failed", cfg.AnalysisRetryFailed).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

var Module = fx.Provide(Load)

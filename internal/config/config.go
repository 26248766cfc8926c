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
	StatsAPIBaseURL string
	StatsAPIKey     string
	OddsAPIBaseURL  string
	OddsAPIKey      string
	OddsSportKey    string
	OddsRegions     string
	DBPath          string
	ServerPort      string
	LogLevel        string
	LookbackDays    int
	LookaheadDays   int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		StatsAPIBaseURL: getEnv("STATS_API_BASE_URL", "https://api.hoopstats.io"),
		StatsAPIKey:     getEnv("STATS_API_KEY", ""),
		OddsAPIBaseURL:  getEnv("ODDS_API_BASE_URL", "https://api.the-odds-api.com"),
		OddsAPIKey:      getEnv("ODDS_API_KEY", ""),
		OddsSportKey:    getEnv("ODDS_SPORT_KEY", "basketball_nba"),
		OddsRegions:     getEnv("ODDS_REGIONS", "us"),
		DBPath:          getEnv("DB_PATH", "hoopsync.db"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LookbackDays:    getEnvInt("SYNC_LOOKBACK_DAYS", 1),
		LookaheadDays:   getEnvInt("SYNC_LOOKAHEAD_DAYS", 3),
	}

	if cfg.OddsAPIKey == "" {
		return nil, fmt.Errorf("ODDS_API_KEY is required")
	}

	logger.Info().
		Str("stats_api_base_url", cfg.StatsAPIBaseURL).
		Str("odds_api_base_url", cfg.OddsAPIBaseURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("lookback_days", cfg.LookbackDays).
		Int("lookahead_days", cfg.LookaheadDays).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)

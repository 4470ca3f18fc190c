package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string
	LogLevel string
	// Placement limits. These are policy, not constants; snapshot loading and
	// the orchestrator both honor them.
	MaxActiveApplications          int
	MaxSlotsPerOpportunity         int
	MaxActiveOpportunitiesPerOwner int
}

func Load() *Config {
	// A missing .env file is fine; the environment still wins.
	_ = godotenv.Load()

	return &Config{
		DataDir:                        getEnv("DATA_DIR", "data"),
		LogLevel:                       getEnv("LOG_LEVEL", "info"),
		MaxActiveApplications:          getInt("MAX_ACTIVE_APPLICATIONS", 3),
		MaxSlotsPerOpportunity:         getInt("MAX_SLOTS_PER_OPPORTUNITY", 10),
		MaxActiveOpportunitiesPerOwner: getInt("MAX_ACTIVE_OPPORTUNITIES_PER_OWNER", 5),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

package config

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"teamchat-backend/internal/models"

	"github.com/joho/godotenv"
)

const (
	defaultPollIntervalSec   = 3
	defaultRequestTimeoutSec = 10
	defaultPresenceGraceSec  = 15
)

// Read loads config.json and overlays secrets and connection details
// from the environment (a local .env file is honored if present, so
// secrets stay out of the checked-in config).
func Read(path string) (models.ConfigFile, error) {
	var cfg models.ConfigFile

	configFile, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return cfg, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return cfg, err
	}

	_ = godotenv.Load(".env")
	overlayEnv(&cfg)
	applyDefaults(&cfg)

	return cfg, nil
}

func overlayEnv(cfg *models.ConfigFile) {
	if v := os.Getenv("TEAMCHAT_JWT_SECRET"); v != "" {
		cfg.JwtSecret = v
	}
	if v := os.Getenv("TEAMCHAT_DB_PASSWORD"); v != "" {
		cfg.DbPassword = v
	}
	if v := os.Getenv("TEAMCHAT_REDIS_ADDRESS"); v != "" {
		cfg.RedisAddress = v
	}
	if v := os.Getenv("TEAMCHAT_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TEAMCHAT_WORKER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SnowflakeWorkerID = id
		}
	}
}

func applyDefaults(cfg *models.ConfigFile) {
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = defaultPollIntervalSec
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = defaultRequestTimeoutSec
	}
	// zero means "not set"; a negative value asks for instant removal
	switch {
	case cfg.PresenceGraceSec == 0:
		cfg.PresenceGraceSec = defaultPresenceGraceSec
	case cfg.PresenceGraceSec < 0:
		cfg.PresenceGraceSec = 0
	}
	if cfg.DbFile == "" {
		cfg.DbFile = "./database.db"
	}
	if cfg.RedisAddress == "" {
		cfg.RedisAddress = "localhost:6379"
	}
}

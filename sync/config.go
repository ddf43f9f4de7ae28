// ABOUTME: Environment-based configuration with .env support
// ABOUTME: Validates required backend settings and applies quota defaults
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config holds everything the bridge needs to talk to both backends. Batch
// caps and rate budgets default to the backends' documented limits but stay
// configurable because quota documentation changes.
type Config struct {
	SheetID    string
	SheetRange string

	AmoBaseURL     string
	AmoAccessToken string
	AmoPipelineID  int64
	AmoStatusID    int64

	PushInterval time.Duration // sheet -> CRM
	PullInterval time.Duration // CRM -> sheet

	SheetBatch PlannerConfig
	CrmBatch   PlannerConfig

	SheetRate RateConfig
	CrmRate   RateConfig

	DBPath   string
	HTTPPort int
}

// LoadConfig reads configuration from the environment, loading envFile first
// when it exists. Missing required keys fail fast.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		SheetID:        os.Getenv("SHEET_ID"),
		SheetRange:     os.Getenv("SHEET_RANGE"),
		AmoBaseURL:     os.Getenv("AMO_BASE_URL"),
		AmoAccessToken: os.Getenv("AMO_ACCESS_TOKEN"),
		AmoPipelineID:  envInt64("AMO_PIPELINE_ID", 8237934),
		AmoStatusID:    envInt64("AMO_STATUS_ID", 67260282),
		PushInterval:   envDuration("PUSH_INTERVAL", 2*time.Minute),
		PullInterval:   envDuration("PULL_INTERVAL", 5*time.Minute),
		SheetBatch: PlannerConfig{
			MaxCreateBatch: envInt("SHEET_APPEND_BATCH", 500),
			MaxUpdateBatch: envInt("SHEET_UPDATE_BATCH", 100),
		},
		CrmBatch: PlannerConfig{
			MaxCreateBatch: envInt("CRM_CREATE_BATCH", 50),
			MaxUpdateBatch: envInt("CRM_UPDATE_BATCH", 50),
		},
		SheetRate: RateConfig{
			CallsPerMinute: envInt("SHEET_CALLS_PER_MINUTE", 60),
			Burst:          envInt("SHEET_BURST", 10),
			MaxWait:        envDuration("SHEET_MAX_WAIT", 30*time.Second),
		},
		CrmRate: RateConfig{
			CallsPerMinute: envInt("CRM_CALLS_PER_MINUTE", 120),
			Burst:          envInt("CRM_BURST", 7),
			MaxWait:        envDuration("CRM_MAX_WAIT", 30*time.Second),
		},
		DBPath:   os.Getenv("DB_PATH"),
		HTTPPort: envInt("HTTP_PORT", 8000),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(xdg.DataHome, "sheetbridge", "sheetbridge.db")
	}

	for _, required := range []struct{ key, value string }{
		{"SHEET_ID", cfg.SheetID},
		{"SHEET_RANGE", cfg.SheetRange},
		{"AMO_BASE_URL", cfg.AmoBaseURL},
		{"AMO_ACCESS_TOKEN", cfg.AmoAccessToken},
	} {
		if required.value == "" {
			return nil, fmt.Errorf("required environment variable %s is not set", required.key)
		}
	}

	return cfg, nil
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}

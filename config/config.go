// Package config loads process configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Schedules holds one cron expression per job. An empty spec disables the job.
//
// A generation schedule must fire after the previous batch of its period has
// expired, otherwise the per-period guard skips every user. Weekly challenges
// expire Monday 23:59:59.999, so the weekly run defaults to Tuesday 00:00.
type Schedules struct {
	DailyChallenges   string `env:"CAPTURE_CRON_DAILY_CHALLENGES" envDefault:"0 0 * * *"`
	WeeklyChallenges  string `env:"CAPTURE_CRON_WEEKLY_CHALLENGES" envDefault:"0 0 * * 2"`
	MonthlyChallenges string `env:"CAPTURE_CRON_MONTHLY_CHALLENGES" envDefault:"0 0 1 * *"`
	Decay             string `env:"CAPTURE_CRON_DECAY" envDefault:"5 0 * * *"`
	Kings             string `env:"CAPTURE_CRON_KINGS" envDefault:"*/30 * * * *"`
	ExpireRewards     string `env:"CAPTURE_CRON_EXPIRE_REWARDS" envDefault:"15 * * * *"`
	ExpireSeason      string `env:"CAPTURE_CRON_EXPIRE_SEASON" envDefault:"10 0 1 * *"`
	ExpireChallenges  string `env:"CAPTURE_CRON_EXPIRE_CHALLENGES" envDefault:"20 0 * * *"`
}

type Config struct {
	Port             int      `env:"CAPTURE_PORT" envDefault:"8080"`
	DBPath           string   `env:"CAPTURE_DB" envDefault:"capture.db"`
	Timezone         string   `env:"CAPTURE_TIMEZONE" envDefault:"Local"`
	PageSize         int      `env:"CAPTURE_PAGE_SIZE" envDefault:"100"`
	RulesFile        string   `env:"CAPTURE_RULES_FILE"`
	SchedulerEnabled bool     `env:"CAPTURE_SCHEDULER_ENABLED" envDefault:"true"`
	CORSOrigins      []string `env:"CAPTURE_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
	SessionRetries   int      `env:"CAPTURE_SESSION_RETRIES" envDefault:"3"`
	// Seed fixes the generator source; 0 picks a random seed.
	Seed uint64 `env:"CAPTURE_SEED" envDefault:"0"`

	Cron Schedules
}

// Load reads .env (if any) and parses CAPTURE_* variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse()
}

// Parse reads CAPTURE_* variables from the process environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.PageSize <= 0 {
		return Config{}, errors.New("CAPTURE_PAGE_SIZE must be > 0")
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and static per-server fetch settings from YAML.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath      string
	ServersFile string

	// RunAt is the daily "HH:MM" start of the scheduled batch in Location.
	RunAt             string
	Location          *time.Location
	RunTimeout        time.Duration
	RetryPassInterval time.Duration

	ErrorThreshold int
	StaleWindow    time.Duration
	ScrapeInterval time.Duration
	HistoryMerge   string

	DiscordToken      string
	DiscordChannelIDs []string

	Servers map[string]Server
}

// Load reads .env files (missing files are ignored), then the environment,
// then the servers file named by EXPTRACKER_SERVERS_FILE if it exists.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Printf("[W] [Config] Could not load %s: %v", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:            envString("EXPTRACKER_DB_PATH", "exptracker.db"),
		ServersFile:       envString("EXPTRACKER_SERVERS_FILE", "servers.yaml"),
		RunAt:             envString("EXPTRACKER_RUN_AT", "06:00"),
		HistoryMerge:      strings.ToLower(envString("EXPTRACKER_HISTORY_MERGE", "max")),
		DiscordToken:      os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelIDs: splitList(os.Getenv("DISCORD_CHANNEL_IDS")),
	}

	var err error
	tz := envString("EXPTRACKER_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid EXPTRACKER_TIMEZONE %q: %w", tz, err)
	}
	if _, _, err := ParseClock(cfg.RunAt); err != nil {
		return nil, fmt.Errorf("invalid EXPTRACKER_RUN_AT: %w", err)
	}
	if cfg.RunTimeout, err = envDuration("EXPTRACKER_RUN_TIMEOUT", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryPassInterval, err = envDuration("EXPTRACKER_RETRY_PASS_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ScrapeInterval, err = envDuration("EXPTRACKER_SCRAPE_INTERVAL", 20*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ErrorThreshold, err = envInt("EXPTRACKER_ERROR_THRESHOLD", 3); err != nil {
		return nil, err
	}
	staleDays, err := envInt("EXPTRACKER_STALE_DAYS", 10)
	if err != nil {
		return nil, err
	}
	cfg.StaleWindow = time.Duration(staleDays) * 24 * time.Hour

	switch cfg.HistoryMerge {
	case "max", "sum":
	default:
		return nil, fmt.Errorf("invalid EXPTRACKER_HISTORY_MERGE %q (want max or sum)", cfg.HistoryMerge)
	}

	cfg.Servers, err = LoadServers(cfg.ServersFile, DefaultServers())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

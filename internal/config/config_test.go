package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("EXPTRACKER_SERVERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "exptracker.db", cfg.DBPath)
	require.Equal(t, "06:00", cfg.RunAt)
	require.Equal(t, 3, cfg.ErrorThreshold)
	require.Equal(t, 10*24*time.Hour, cfg.StaleWindow)
	require.Equal(t, 20*time.Hour, cfg.ScrapeInterval)
	require.Equal(t, "max", cfg.HistoryMerge)
	require.Contains(t, cfg.Servers, "rubinot")
	require.Contains(t, cfg.Servers, "mystian")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("EXPTRACKER_SERVERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("EXPTRACKER_RUN_AT", "04:30")
	t.Setenv("EXPTRACKER_ERROR_THRESHOLD", "5")
	t.Setenv("EXPTRACKER_STALE_DAYS", "7")
	t.Setenv("EXPTRACKER_HISTORY_MERGE", "SUM")
	t.Setenv("DISCORD_CHANNEL_IDS", " 123, ,456 ")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "04:30", cfg.RunAt)
	require.Equal(t, 5, cfg.ErrorThreshold)
	require.Equal(t, 7*24*time.Hour, cfg.StaleWindow)
	require.Equal(t, "sum", cfg.HistoryMerge)
	require.Equal(t, []string{"123", "456"}, cfg.DiscordChannelIDs)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("EXPTRACKER_SERVERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	t.Setenv("EXPTRACKER_RUN_AT", "25:99")
	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("EXPTRACKER_RUN_AT", "06:00")
	t.Setenv("EXPTRACKER_HISTORY_MERGE", "avg")
	_, err = FromEnv()
	require.Error(t, err)
}

func TestLoadServersOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	err := os.WriteFile(path, []byte(`
servers:
  rubinot:
    min_delay: 3s
    max_retries: 0
    headers:
      X-Client: exptracker
  custom:
    base_url: https://custom.example
    worlds: [One, Two]
    fetch_mode: browser
`), 0o644)
	require.NoError(t, err)

	servers, err := LoadServers(path, DefaultServers())
	require.NoError(t, err)

	rubinot := servers["rubinot"]
	require.Equal(t, 3*time.Second, rubinot.MinDelay.D())
	require.Equal(t, 0, rubinot.Retries())
	require.Equal(t, "https://rubinot.com.br", rubinot.BaseURL)
	require.Equal(t, "exptracker", rubinot.Headers["X-Client"])
	require.Equal(t, "en-US,en;q=0.9", rubinot.Headers["Accept-Language"])

	custom := servers["custom"]
	require.Equal(t, []string{"One", "Two"}, custom.Worlds)
	require.Equal(t, FetchBrowser, custom.FetchMode)
	require.Equal(t, 3, custom.Retries())

	require.Equal(t, 2500*time.Millisecond, servers["mystian"].MinDelay.D())
}

func TestLoadServersRejectsIncompleteServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers:\n  orphan:\n    min_delay: 1s\n"), 0o644))

	_, err := LoadServers(path, DefaultServers())
	require.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("06:05")
	require.NoError(t, err)
	require.Equal(t, 6, h)
	require.Equal(t, 5, m)

	_, _, err = ParseClock("6am")
	require.Error(t, err)
}

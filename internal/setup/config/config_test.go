package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))
	t.Chdir(dir)
}

func TestLoadConfig(t *testing.T) {
	writeConfig(t, `
version = 1

[telegram]
token = "test-token"

[sheets]
spreadsheet_id = "sheet-id"
credentials_file = "creds.json"

[[gate.channels]]
id = -1001234567890
title = "Channel"
url = "https://t.me/+abc"
`)

	cfg, usedPath, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".", usedPath)

	assert.Equal(t, "test-token", cfg.Telegram.Token)
	assert.Equal(t, "sheet-id", cfg.Sheets.SpreadsheetID)
	require.Len(t, cfg.Gate.Channels, 1)
	assert.Equal(t, int64(-1001234567890), cfg.Gate.Channels[0].ID)

	// Unset fields fall back to operating defaults
	assert.Equal(t, "info", cfg.Debug.LogLevel)
	assert.Equal(t, 30, cfg.Telegram.PollTimeout)
	assert.Equal(t, "Users", cfg.Sheets.UsersTable)
	assert.Equal(t, "Movies", cfg.Sheets.MoviesTable)
	assert.Equal(t, 300, cfg.Sync.LedgerRefresh)
	assert.Equal(t, 5, cfg.Rewards.StartCredits)
	assert.Equal(t, 2, cfg.Rewards.ReferralCredits)
	assert.InDelta(t, 20.0, cfg.Gate.DispatchPerSecond, 0.001)
}

func TestLoadConfigMissingVersion(t *testing.T) {
	writeConfig(t, `
[telegram]
token = "test-token"

[[gate.channels]]
id = -100
title = "Channel"
url = "https://t.me/+abc"
`)

	_, _, err := config.LoadConfig()
	require.ErrorIs(t, err, config.ErrConfigVersionMissing)
}

func TestLoadConfigVersionMismatch(t *testing.T) {
	writeConfig(t, `
version = 99

[[gate.channels]]
id = -100
title = "Channel"
url = "https://t.me/+abc"
`)

	_, _, err := config.LoadConfig()
	require.ErrorIs(t, err, config.ErrConfigVersionMismatch)
}

func TestLoadConfigRequiresChannels(t *testing.T) {
	writeConfig(t, `
version = 1

[telegram]
token = "test-token"
`)

	_, _, err := config.LoadConfig()
	require.ErrorIs(t, err, config.ErrNoChannels)
}

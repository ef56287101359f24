package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrNoChannels            = errors.New("config must list at least one gate channel")
)

// CurrentVersion is the expected version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version  int      `koanf:"version"`
	Debug    Debug    `koanf:"debug"`
	Telegram Telegram `koanf:"telegram"`
	Sheets   Sheets   `koanf:"sheets"`
	Retry    Retry    `koanf:"retry"`
	Sync     Sync     `koanf:"sync"`
	Gate     Gate     `koanf:"gate"`
	Rewards  Rewards  `koanf:"rewards"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
}

// Telegram contains bot API configuration.
type Telegram struct {
	// Bot token for authentication.
	Token string `koanf:"token"`
	// Long-poll timeout in seconds.
	PollTimeout int `koanf:"poll_timeout"`
}

// Sheets contains spreadsheet backing store configuration.
type Sheets struct {
	// Spreadsheet document ID.
	SpreadsheetID string `koanf:"spreadsheet_id"`
	// Path to the service account credentials file.
	CredentialsFile string `koanf:"credentials_file"`
	// Sheet name holding movie code/title rows.
	MoviesTable string `koanf:"movies_table"`
	// Sheet name holding user ledger rows.
	UsersTable string `koanf:"users_table"`
	// Sheet name holding join request rows.
	JoinRequestsTable string `koanf:"join_requests_table"`
}

// Retry contains retry configuration for remote calls.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Sync contains cache synchronization configuration.
type Sync struct {
	// Full ledger reload interval in seconds.
	LedgerRefresh int `koanf:"ledger_refresh"`
	// Catalog tail refresh interval in seconds.
	CatalogRefresh int `koanf:"catalog_refresh"`
	// Join request reload interval in seconds.
	JoinRequestRefresh int `koanf:"join_request_refresh"`
	// Pending write flush interval in seconds.
	FlushInterval int `koanf:"flush_interval"`
	// Flush attempts per record before the mutation is dropped.
	FlushMaxAttempts int `koanf:"flush_max_attempts"`
	// Maximum join request entries held in memory.
	JoinRequestLimit int `koanf:"join_request_limit"`
}

// Gate contains membership gate configuration.
type Gate struct {
	// Membership check dispatches per second across all channels.
	DispatchPerSecond float64 `koanf:"dispatch_per_second"`
	// Channels a user must satisfy before using the bot.
	Channels []Channel `koanf:"channels"`
}

// Channel identifies one gated sponsor channel.
type Channel struct {
	// Chat ID of the channel.
	ID int64 `koanf:"id"`
	// Display title shown on the subscription keyboard.
	Title string `koanf:"title"`
	// Invite URL shown on the subscription keyboard.
	URL string `koanf:"url"`
}

// Rewards contains credit amounts for new users and referrals.
type Rewards struct {
	// Search credits granted on first contact.
	StartCredits int `koanf:"start_credits"`
	// Search credits granted to a referrer per settled referral.
	ReferralCredits int `koanf:"referral_credits"`
}

// LoadConfig loads the configuration from the first config.toml found in the
// search paths. Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".filmgate",
		homeDir + "/.filmgate/config",
		"/etc/filmgate/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	if !k.Exists("version") {
		return nil, "", ErrConfigVersionMissing
	}

	if version := k.Int("version"); version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: expected %d, got %d", ErrConfigVersionMismatch, CurrentVersion, version)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Gate.Channels) == 0 {
		return nil, "", ErrNoChannels
	}

	applyDefaults(&cfg)

	return &cfg, usedConfigPath, nil
}

// applyDefaults fills zero values with safe operating defaults so a minimal
// config file still produces a working process.
func applyDefaults(cfg *Config) {
	if cfg.Debug.LogLevel == "" {
		cfg.Debug.LogLevel = "info"
	}

	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}

	if cfg.Sheets.MoviesTable == "" {
		cfg.Sheets.MoviesTable = "Movies"
	}

	if cfg.Sheets.UsersTable == "" {
		cfg.Sheets.UsersTable = "Users"
	}

	if cfg.Sheets.JoinRequestsTable == "" {
		cfg.Sheets.JoinRequestsTable = "JoinRequests"
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 4
	}

	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = 2000
	}

	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 15000
	}

	if cfg.Sync.LedgerRefresh == 0 {
		cfg.Sync.LedgerRefresh = 300
	}

	if cfg.Sync.CatalogRefresh == 0 {
		cfg.Sync.CatalogRefresh = 120
	}

	if cfg.Sync.JoinRequestRefresh == 0 {
		cfg.Sync.JoinRequestRefresh = 300
	}

	if cfg.Sync.FlushInterval == 0 {
		cfg.Sync.FlushInterval = 30
	}

	if cfg.Sync.FlushMaxAttempts == 0 {
		cfg.Sync.FlushMaxAttempts = 5
	}

	if cfg.Sync.JoinRequestLimit == 0 {
		cfg.Sync.JoinRequestLimit = 10000
	}

	if cfg.Gate.DispatchPerSecond == 0 {
		cfg.Gate.DispatchPerSecond = 20
	}

	if cfg.Rewards.StartCredits == 0 {
		cfg.Rewards.StartCredits = 5
	}

	if cfg.Rewards.ReferralCredits == 0 {
		cfg.Rewards.ReferralCredits = 2
	}
}

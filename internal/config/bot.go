package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bot holds the per-account configuration, read once at startup.
type Bot struct {
	// Identity and credentials
	Enabled       bool   `yaml:"enabled"`
	StartOnLaunch bool   `yaml:"start_on_launch"`
	Login         string `yaml:"login"`
	Password      string `yaml:"password"` // may be empty when a remembered session key exists
	ParentalPIN   string `yaml:"parental_pin"`

	// Authorization
	MasterID     uint64 `yaml:"master_id"`      // peer allowed to command this bot and receive loot
	MasterClanID uint64 `yaml:"master_clan_id"` // group joined after login
	IsBotAccount bool   `yaml:"is_bot_account"` // decline friend requests from non-masters

	// Behavior
	FarmOffline                   bool `yaml:"farm_offline"`
	CardDropsRestricted           bool `yaml:"card_drops_restricted"`
	HandleOfflineMessages         bool `yaml:"handle_offline_messages"`
	AcceptGifts                   bool `yaml:"accept_gifts"`
	ForwardKeysToOtherBots        bool `yaml:"forward_keys_to_other_bots"`
	DistributeKeys                bool `yaml:"distribute_keys"`
	DismissInventoryNotifications bool `yaml:"dismiss_inventory_notifications"`

	// Periodic work (0 disables)
	AcceptConfirmationsPeriod int `yaml:"accept_confirmations_period"` // minutes
	SendTradePeriod           int `yaml:"send_trade_period"`           // hours

	SendOnFarmingFinished     bool `yaml:"send_on_farming_finished"`
	ShutdownOnFarmingFinished bool `yaml:"shutdown_on_farming_finished"`

	// Idling when no farming is in progress
	IdleGames    []uint32 `yaml:"idle_games"`
	IdleGameName string   `yaml:"idle_game_name"` // custom non-app "now playing" text

	TradeToken string   `yaml:"trade_token"`
	Blacklist  []uint32 `yaml:"blacklist"` // apps this bot never farms
}

// DefaultBot returns a bot config with the defaults every new account gets.
func DefaultBot() Bot {
	return Bot{
		Enabled:       true,
		StartOnLaunch: true,
		AcceptGifts:   true,
	}
}

// LoadBot reads a single bot config from a YAML file.
// Unlike the global config, a missing bot file is an error.
func LoadBot(path string) (Bot, error) {
	cfg := DefaultBot()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading bot config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing bot config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating bot config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects bot configs that cannot produce a working account.
func (b Bot) Validate() error {
	if b.Login == "" {
		return fmt.Errorf("login must not be empty")
	}
	if b.AcceptConfirmationsPeriod < 0 {
		return fmt.Errorf("accept_confirmations_period must not be negative, got %d", b.AcceptConfirmationsPeriod)
	}
	if b.SendTradePeriod < 0 {
		return fmt.Errorf("send_trade_period must not be negative, got %d", b.SendTradePeriod)
	}
	if len(b.IdleGames) > 0 && b.IdleGameName != "" {
		return fmt.Errorf("idle_games and idle_game_name are mutually exclusive")
	}
	return nil
}

// IsBlacklisted reports whether this bot refuses to farm the app.
func (b Bot) IsBlacklisted(appID uint32) bool {
	for _, id := range b.Blacklist {
		if id == appID {
			return true
		}
	}
	return false
}

// DiscoverBots lists bot names with a config file under dir.
// A bot name is the file name without the .yaml extension; names carrying
// path separators or leading dots are skipped.
func DiscoverBots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bots dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	return names, nil
}

// BotConfigPath returns the config file path for the named bot.
func BotConfigPath(dir, name string) string {
	return filepath.Join(dir, name+".yaml")
}

// BotDatabasePath returns the database file path for the named bot.
func BotDatabasePath(dir, name string) string {
	return filepath.Join(dir, name+".db.json")
}

// BotSentryPath returns the sentry file path for the named bot.
func BotSentryPath(dir, name string) string {
	return filepath.Join(dir, name+".sentry")
}

// BotMaFilePath returns the path a mobile-authenticator export is
// imported from for the named bot.
func BotMaFilePath(dir, name string) string {
	return filepath.Join(dir, name+".maFile")
}

// GlobalDatabasePath returns the fleet database file path.
func GlobalDatabasePath(dir string) string {
	return filepath.Join(dir, "global.db.json")
}

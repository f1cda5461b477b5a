package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Global holds the daemon-wide configuration shared by every bot.
type Global struct {
	// IPC surface
	IPCBindAddress  string `yaml:"ipc_bind_address"`  // empty disables the HTTP API
	IPCPasswordHash string `yaml:"ipc_password_hash"` // bcrypt hash; empty allows unauthenticated access

	// Fleet
	OwnerID uint64 `yaml:"owner_id"` // super-user authorized across all bots
	BotsDir string `yaml:"bots_dir"` // per-account config + database files

	// Platform endpoints
	CMServers     []string `yaml:"cm_servers"`     // websocket session endpoints
	CommunityHost string   `yaml:"community_host"` // web session host

	// Farming
	FarmingDelay   int      `yaml:"farming_delay"`    // minutes between card-page polls
	MaxFarmingTime int      `yaml:"max_farming_time"` // hours before giving up on one app
	FarmBlacklist  []uint32 `yaml:"farm_blacklist"`   // never farmed, fleet-wide

	// Statistics
	Statistics        bool   `yaml:"statistics"`
	StatisticsGroupID uint64 `yaml:"statistics_group_id"`

	// Rate limits and HTTP behavior
	LoginLimiterDelay      int     `yaml:"login_limiter_delay"`       // seconds between login attempts, fleet-wide
	GiftsLimiterDelay      int     `yaml:"gifts_limiter_delay"`       // seconds between gift accepts, fleet-wide
	HTTPTimeout            int     `yaml:"http_timeout"`              // seconds per web request
	WebRetryLimit          int     `yaml:"web_retry_limit"`           // attempts before a web request gives up
	WebRequestsPerSecond   float64 `yaml:"web_requests_per_second"`   // pacing for the web client
	LoggedInElsewhereDelay int     `yaml:"logged_in_elsewhere_delay"` // minutes before retrying a seized session; 0 stops the bot

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// Default returns the global config with production defaults.
func Default() Global {
	return Global{
		IPCBindAddress:         "127.0.0.1:1242",
		BotsDir:                "bots",
		CMServers:              []string{"wss://cm1.cardfarm.invalid/cmsocket/", "wss://cm2.cardfarm.invalid/cmsocket/"},
		CommunityHost:          "https://steamcommunity.com",
		FarmingDelay:           15,
		MaxFarmingTime:         10,
		FarmBlacklist:          []uint32{267420, 303700, 335590, 368020, 425280, 480730, 566020},
		StatisticsGroupID:      103582791440160998,
		LoginLimiterDelay:      10,
		GiftsLimiterDelay:      5,
		HTTPTimeout:            60,
		WebRetryLimit:          5,
		WebRequestsPerSecond:   1,
		LoggedInElsewhereDelay: 5,
		LogLevel:               "info",
	}
}

// Load reads the global config from a YAML file.
// A missing file yields the defaults.
func Load(path string) (Global, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (g Global) Validate() error {
	if len(g.CMServers) == 0 {
		return fmt.Errorf("cm_servers must not be empty")
	}
	if g.CommunityHost == "" {
		return fmt.Errorf("community_host must not be empty")
	}
	if g.FarmingDelay <= 0 {
		return fmt.Errorf("farming_delay must be positive, got %d", g.FarmingDelay)
	}
	if g.MaxFarmingTime <= 0 {
		return fmt.Errorf("max_farming_time must be positive, got %d", g.MaxFarmingTime)
	}
	if g.WebRetryLimit <= 0 {
		return fmt.Errorf("web_retry_limit must be positive, got %d", g.WebRetryLimit)
	}
	return nil
}

// HTTPTimeoutDuration returns the per-request web timeout.
func (g Global) HTTPTimeoutDuration() time.Duration {
	return time.Duration(g.HTTPTimeout) * time.Second
}

// FarmingDelayDuration returns the pause between card-page polls.
func (g Global) FarmingDelayDuration() time.Duration {
	return time.Duration(g.FarmingDelay) * time.Minute
}

// MaxFarmingTimeDuration returns the per-app farming deadline.
func (g Global) MaxFarmingTimeDuration() time.Duration {
	return time.Duration(g.MaxFarmingTime) * time.Hour
}

// LoginLimiterDelayDuration returns the fleet-wide pause between login
// attempts.
func (g Global) LoginLimiterDelayDuration() time.Duration {
	return time.Duration(g.LoginLimiterDelay) * time.Second
}

// GiftsLimiterDelayDuration returns the fleet-wide pause between gift
// accepts.
func (g Global) GiftsLimiterDelayDuration() time.Duration {
	return time.Duration(g.GiftsLimiterDelay) * time.Second
}

// LoggedInElsewhereDelayDuration returns the wait before reclaiming a
// seized session. Zero means give up instead.
func (g Global) LoggedInElsewhereDelayDuration() time.Duration {
	return time.Duration(g.LoggedInElsewhereDelay) * time.Minute
}

package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Twitter   TwitterConfig
	RateLimit RateLimitConfig
	Processor ProcessorConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	MaxConns      int
	MaxUploadMB   int
	SecureCookies bool
	MCPStdio      bool
}

type StorageConfig struct {
	Backend    string
	DataDir    string
	NATSURL    string
	NATSBucket string
}

type LogConfig struct {
	Level string
}

type TwitterConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	APIBaseURL     string
	CapPeriod      string
	RequestTimeout time.Duration
}

type RateLimitConfig struct {
	ShortWindow    time.Duration
	ShortWindowMax int
	LongWindow     time.Duration
	LongWindowMax  int
}

type ProcessorConfig struct {
	Schedule           string
	DeletePerRun       int
	ReactivationBuffer time.Duration
	ResetPadding       time.Duration
	TimelineCap        int
	CallInterval       time.Duration
	PageInterval       time.Duration
	LeaseTTL           time.Duration
}

const (
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        3000,
			MaxConns:    256,
			MaxUploadMB: 512,
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			DataDir:    defaultDataDir(),
			NATSURL:    "nats://127.0.0.1:4222",
			NATSBucket: "tweetsweep",
		},
		Log: LogConfig{
			Level: "info",
		},
		Twitter: TwitterConfig{
			RedirectURL:    "http://127.0.0.1:3000/callback",
			APIBaseURL:     "https://api.x.com",
			CapPeriod:      "Monthly",
			RequestTimeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			ShortWindow:    15 * time.Minute,
			ShortWindowMax: 50,
			LongWindow:     3 * time.Hour,
			LongWindowMax:  300,
		},
		Processor: ProcessorConfig{
			Schedule:           "@every 1m",
			DeletePerRun:       10,
			ReactivationBuffer: 30 * time.Second,
			ResetPadding:       60 * time.Second,
			TimelineCap:        10000,
			CallInterval:       time.Second,
			PageInterval:       time.Second,
			LeaseTTL:           10 * time.Minute,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.tweetsweep.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tweetsweep/config.json
// and secrets live in $XDG_DATA_HOME/tweetsweep/secrets.json.
//
// Environment variables (TWEETSWEEP_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the client secret if still empty.
	if cfg.Twitter.ClientSecret == "" {
		if v, err := kc.Get(secretService, clientSecretAccount); err == nil && v != "" {
			cfg.Twitter.ClientSecret = v
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendNATS:
	default:
		return fmt.Errorf("invalid storage.backend %q: want %q or %q", c.Storage.Backend, BackendSQLite, BackendNATS)
	}
	if c.Processor.DeletePerRun <= 0 {
		return fmt.Errorf("processor.delete_per_run must be positive, got %d", c.Processor.DeletePerRun)
	}
	if c.RateLimit.ShortWindowMax <= 0 || c.RateLimit.LongWindowMax <= 0 {
		return fmt.Errorf("rate_limit window maximums must be positive")
	}
	return nil
}

// RequireTwitter reports a clear error when the X OAuth client is not
// configured. Only commands that talk to X need it.
func (c Config) RequireTwitter() error {
	if c.Twitter.ClientID == "" {
		return fmt.Errorf("missing required config: X OAuth client ID. " +
			"Set it via environment variable TWEETSWEEP_TWITTER_CLIENT_ID or `tweetsweep config set twitter.client_id <id>`")
	}
	return nil
}

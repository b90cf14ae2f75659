package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "TWEETSWEEP_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "TWEETSWEEP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "TWEETSWEEP_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.max_upload_mb", typ: kInt, env: "TWEETSWEEP_SERVER_MAX_UPLOAD_MB",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxUploadMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxUploadMB },
	},
	{
		key: "server.secure_cookies", typ: kBool, env: "TWEETSWEEP_SERVER_SECURE_COOKIES",
		apply:   func(cfg *Config, v any) { cfg.Server.SecureCookies = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.SecureCookies },
	},
	{
		key: "server.mcp_stdio", typ: kBool, env: "TWEETSWEEP_SERVER_MCP_STDIO",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPStdio = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPStdio },
	},
	{
		key: "storage.backend", typ: kString, env: "TWEETSWEEP_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TWEETSWEEP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.nats_url", typ: kString, env: "TWEETSWEEP_STORAGE_NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.NATSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.NATSURL },
	},
	{
		key: "storage.nats_bucket", typ: kString, env: "TWEETSWEEP_STORAGE_NATS_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Storage.NATSBucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.NATSBucket },
	},
	{
		key: "log.level", typ: kString, env: "TWEETSWEEP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "twitter.client_id", typ: kString, env: "TWEETSWEEP_TWITTER_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Twitter.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Twitter.ClientID },
	},
	{
		key: "twitter.client_secret", typ: kString, env: "TWEETSWEEP_TWITTER_CLIENT_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Twitter.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Twitter.ClientSecret },
	},
	{
		key: "twitter.redirect_url", typ: kString, env: "TWEETSWEEP_TWITTER_REDIRECT_URL",
		apply:   func(cfg *Config, v any) { cfg.Twitter.RedirectURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Twitter.RedirectURL },
	},
	{
		key: "twitter.api_base_url", typ: kString, env: "TWEETSWEEP_TWITTER_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Twitter.APIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Twitter.APIBaseURL },
	},
	{
		key: "twitter.cap_period", typ: kString, env: "TWEETSWEEP_TWITTER_CAP_PERIOD",
		apply:   func(cfg *Config, v any) { cfg.Twitter.CapPeriod = v.(string) },
		extract: func(cfg Config) any { return cfg.Twitter.CapPeriod },
	},
	{
		key: "twitter.request_timeout", typ: kDuration, env: "TWEETSWEEP_TWITTER_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Twitter.RequestTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Twitter.RequestTimeout },
	},
	{
		key: "rate_limit.short_window", typ: kDuration, env: "TWEETSWEEP_RATE_LIMIT_SHORT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.ShortWindow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.ShortWindow },
	},
	{
		key: "rate_limit.short_window_max", typ: kInt, env: "TWEETSWEEP_RATE_LIMIT_SHORT_WINDOW_MAX",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.ShortWindowMax = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.ShortWindowMax },
	},
	{
		key: "rate_limit.long_window", typ: kDuration, env: "TWEETSWEEP_RATE_LIMIT_LONG_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.LongWindow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.LongWindow },
	},
	{
		key: "rate_limit.long_window_max", typ: kInt, env: "TWEETSWEEP_RATE_LIMIT_LONG_WINDOW_MAX",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.LongWindowMax = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.LongWindowMax },
	},
	{
		key: "processor.schedule", typ: kString, env: "TWEETSWEEP_PROCESSOR_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Processor.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Processor.Schedule },
	},
	{
		key: "processor.delete_per_run", typ: kInt, env: "TWEETSWEEP_PROCESSOR_DELETE_PER_RUN",
		apply:   func(cfg *Config, v any) { cfg.Processor.DeletePerRun = v.(int) },
		extract: func(cfg Config) any { return cfg.Processor.DeletePerRun },
	},
	{
		key: "processor.reactivation_buffer", typ: kDuration, env: "TWEETSWEEP_PROCESSOR_REACTIVATION_BUFFER",
		apply:   func(cfg *Config, v any) { cfg.Processor.ReactivationBuffer = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processor.ReactivationBuffer },
	},
	{
		key: "processor.reset_padding", typ: kDuration, env: "TWEETSWEEP_PROCESSOR_RESET_PADDING",
		apply:   func(cfg *Config, v any) { cfg.Processor.ResetPadding = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processor.ResetPadding },
	},
	{
		key: "processor.timeline_cap", typ: kInt, env: "TWEETSWEEP_PROCESSOR_TIMELINE_CAP",
		apply:   func(cfg *Config, v any) { cfg.Processor.TimelineCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Processor.TimelineCap },
	},
	{
		key: "processor.call_interval", typ: kDuration, env: "TWEETSWEEP_PROCESSOR_CALL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Processor.CallInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processor.CallInterval },
	},
	{
		key: "processor.page_interval", typ: kDuration, env: "TWEETSWEEP_PROCESSOR_PAGE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Processor.PageInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processor.PageInterval },
	},
	{
		key: "processor.lease_ttl", typ: kDuration, env: "TWEETSWEEP_PROCESSOR_LEASE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Processor.LeaseTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processor.LeaseTTL },
	},
}

// parse converts a raw string into the Go value for s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func (s keySpec) typeName() string {
	switch s.typ {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] config key %s=%q is not a valid %s (%v), keeping the default\n", s.key, raw, s.typeName(), err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

// stored is the form v is persisted in.
func (s keySpec) stored(v any, raw string) any {
	switch s.typ {
	case kInt, kBool:
		return v
	default:
		return raw
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typeName(), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

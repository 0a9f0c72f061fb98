package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// EnvPrefix marks environment variables read as settings
const EnvPrefix = "CHANNEL_GUARD_"

// DefaultFiles are the settings files looked up, first existing wins
var DefaultFiles = []string{
	"channel-guard.yaml",
	"channel-guard.yml",
	"channel-guard.json",
	"channel-guard.toml",
}

// Config holds process settings. The moderation rules live in a separate
// document (see DocumentPath) managed at runtime by the owner.
type Config struct {
	DocumentPath     string        `koanf:"document_path"`
	TelegramAPIURL   string        `koanf:"telegram_api_url"`
	HTTPAddr         string        `koanf:"http_addr"`
	LogFile          string        `koanf:"log_file"`
	LogMaxSizeMB     int           `koanf:"log_max_size_mb"`
	LogMaxBackups    int           `koanf:"log_max_backups"`
	Debug            bool          `koanf:"debug"`
	WatchDocument    bool          `koanf:"watch_document"`
	MatchTimeout     time.Duration `koanf:"match_timeout"`
	PatternCacheSize int           `koanf:"pattern_cache_size"`
	DeleteRetries    int           `koanf:"delete_retries"`
	DeleteRetryDelay time.Duration `koanf:"delete_retry_delay"`
	AppEnv           AppEnv        `koanf:"app_env"`
}

var defaults = map[string]any{
	"document_path":      "config.json",
	"telegram_api_url":   "https://api.telegram.org",
	"http_addr":          ":8080",
	"log_file":           "",
	"log_max_size_mb":    10,
	"log_max_backups":    3,
	"debug":              false,
	"watch_document":     true,
	"match_timeout":      "100ms",
	"pattern_cache_size": 256,
	"delete_retries":     3,
	"delete_retry_delay": "500ms",
	"app_env":            "production",
}

// Load reads settings from the first existing default file and the environment
func Load() (*Config, error) {
	return LoadFrom(DefaultFiles...)
}

// LoadFrom reads settings from the first existing of files, then applies
// environment overrides and defaults
func LoadFrom(files ...string) (*Config, error) {
	k := koanf.New(".")

	configFile, found := lo.Find(files, func(file string) bool {
		_, err := os.Stat(file)
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// environment variables override file values
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return nil, oops.With("key", key, "context", "setting default").Wrap(err)
			}
		}
	}

	for _, key := range k.Keys() {
		if _, ok := defaults[strings.SplitN(key, ".", 2)[0]]; !ok {
			slog.Warn("Unknown setting ignored", "key", key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	appEnv, err := ParseAppEnv(string(cfg.AppEnv))
	if err != nil {
		slog.Warn("Unknown app_env, using production", "app_env", cfg.AppEnv)
		appEnv = AppEnvProduction
	}
	cfg.AppEnv = appEnv

	if cfg.DocumentPath == "" {
		return nil, oops.With("key", "document_path").New("rules document path is empty")
	}

	return &cfg, nil
}

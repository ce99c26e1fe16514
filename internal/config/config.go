package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings of the analytics services.
type Config struct {
	// Store endpoints. Postgres DSNs, or sqlite:// paths for the stores that
	// support the embedded engine.
	Stores StoresConfig `yaml:"stores" mapstructure:"stores"`

	// Cache tier (short-term mined bundles)
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// GitHub metadata refresh
	GitHub GitHubConfig `yaml:"github" mapstructure:"github"`

	// Slack announcements (optional; empty token disables)
	Slack SlackConfig `yaml:"slack" mapstructure:"slack"`

	// Heater knobs
	Heater HeaterConfig `yaml:"heater" mapstructure:"heater"`
}

type StoresConfig struct {
	StateDSN          string `yaml:"state_dsn" mapstructure:"state_dsn"`
	MetadataDSN       string `yaml:"metadata_dsn" mapstructure:"metadata_dsn"`
	PrecomputedDSN    string `yaml:"precomputed_dsn" mapstructure:"precomputed_dsn"`
	PersistentdataDSN string `yaml:"persistentdata_dsn" mapstructure:"persistentdata_dsn"`
}

type CacheConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type GitHubConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
}

type SlackConfig struct {
	Token          string `yaml:"token" mapstructure:"token"`
	InstallChannel string `yaml:"install_channel" mapstructure:"install_channel"`
	AccountChannel string `yaml:"account_channel" mapstructure:"account_channel"`
}

type HeaterConfig struct {
	CheckpointPath string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	LabelSyncBatch int    `yaml:"label_sync_batch" mapstructure:"label_sync_batch"`
	MiningYears    int    `yaml:"mining_years" mapstructure:"mining_years"`
	// Optional YAML file of repository → release-match rules applied on top
	// of the per-account settings.
	ReleaseSettingsPath string `yaml:"release_settings_path" mapstructure:"release_settings_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL: 15 * time.Minute,
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
		Heater: HeaterConfig{
			CheckpointPath: "heater.db",
			LabelSyncBatch: 1000,
			MiningYears:    2,
		},
	}
}

// Load reads configuration from an optional YAML file, the environment and
// .env files. Environment variables use the SHIPFACTS_ prefix with _ as the
// nesting separator, e.g. SHIPFACTS_STORES_STATE_DSN.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SHIPFACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("github", cfg.GitHub)
	v.SetDefault("heater", cfg.Heater)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config %s: %w", path, err)
		}
		defer f.Close()
		if err := v.ReadConfig(f); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.GitHub.Token == "" {
		// fall back to the OS keychain, then the conventional env var
		if tok, err := tokenFromKeyring(); err == nil && tok != "" {
			cfg.GitHub.Token = tok
		} else {
			cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
		}
	}
	return cfg, nil
}

// Validate checks that the four store endpoints are present.
func (c *Config) Validate() error {
	missing := []string{}
	if c.Stores.StateDSN == "" {
		missing = append(missing, "stores.state_dsn")
	}
	if c.Stores.MetadataDSN == "" {
		missing = append(missing, "stores.metadata_dsn")
	}
	if c.Stores.PrecomputedDSN == "" {
		missing = append(missing, "stores.precomputed_dsn")
	}
	if c.Stores.PersistentdataDSN == "" {
		missing = append(missing, "stores.persistentdata_dsn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadEnvFiles() {
	// closest wins; missing files are fine
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}

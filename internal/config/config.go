package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the session agent.
type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Storage struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`
	Identity struct {
		BaseURL        string        `mapstructure:"base_url"`
		APIKey         string        `mapstructure:"api_key"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		RateLimit      int           `mapstructure:"rate_limit"`
	} `mapstructure:"identity"`
	Docstore struct {
		BaseURL        string        `mapstructure:"base_url"`
		APIKey         string        `mapstructure:"api_key"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		RateLimit      int           `mapstructure:"rate_limit"`
	} `mapstructure:"docstore"`
	Session struct {
		Duration        time.Duration `mapstructure:"duration"`
		WriteWindow     time.Duration `mapstructure:"write_window"`
		MaxDevices      int           `mapstructure:"max_devices"`
		WarnThreshold   time.Duration `mapstructure:"warn_threshold"`
		PollInterval    time.Duration `mapstructure:"poll_interval"`
		HintTTL         time.Duration `mapstructure:"hint_ttl"`
		DeviceNameLabel string        `mapstructure:"device_name"`
	} `mapstructure:"session"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("adlens_session")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// v.ReadInConfig returns error if file missing; ignore if not found to allow env-only config
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8091")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("storage.path", "./data/session.db")

	v.SetDefault("identity.base_url", "http://127.0.0.1:9099")
	v.SetDefault("identity.request_timeout", "10s")
	v.SetDefault("identity.rate_limit", 5)

	v.SetDefault("docstore.base_url", "http://127.0.0.1:9098")
	v.SetDefault("docstore.request_timeout", "10s")
	v.SetDefault("docstore.rate_limit", 5)

	v.SetDefault("session.duration", "168h")
	v.SetDefault("session.write_window", "1s")
	v.SetDefault("session.max_devices", 3)
	v.SetDefault("session.warn_threshold", "5m")
	v.SetDefault("session.poll_interval", "60s")
	v.SetDefault("session.hint_ttl", "336h")
	v.SetDefault("session.device_name", "")

	v.SetDefault("log.level", "info")
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"swaggerd/internal/domain"
)

// Config is the normalized daemon configuration.
type Config struct {
	ListenAddress         string
	StorePath             string
	RequestTimeoutSeconds int
	Observability         Observability
	Upstreams             []domain.UpstreamConfig
}

type Observability struct {
	ListenAddress string
	Metrics       bool
	Healthz       bool
}

type rawConfig struct {
	ListenAddress         string                  `mapstructure:"listenAddress"`
	StorePath             string                  `mapstructure:"storePath"`
	RequestTimeoutSeconds int                     `mapstructure:"requestTimeoutSeconds"`
	Observability         rawObservability        `mapstructure:"observability"`
	Upstreams             []domain.UpstreamConfig `mapstructure:"upstreams"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
	Metrics       bool   `mapstructure:"metrics"`
	Healthz       bool   `mapstructure:"healthz"`
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddress", domain.DefaultListenAddress)
	v.SetDefault("storePath", domain.DefaultStorePath)
	v.SetDefault("requestTimeoutSeconds", domain.DefaultRequestTimeoutSeconds)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.metrics", true)
	v.SetDefault("observability.healthz", true)
}

// Load reads and normalizes the config file at path. A missing file yields
// the defaults so the daemon can start empty.
func Load(path string) (Config, error) {
	v := newConfigViper()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return normalize(rawConfig{}, v)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return normalize(raw, v)
}

func normalize(raw rawConfig, v *viper.Viper) (Config, error) {
	cfg := Config{
		ListenAddress:         v.GetString("listenAddress"),
		StorePath:             v.GetString("storePath"),
		RequestTimeoutSeconds: v.GetInt("requestTimeoutSeconds"),
		Observability: Observability{
			ListenAddress: v.GetString("observability.listenAddress"),
			Metrics:       v.GetBool("observability.metrics"),
			Healthz:       v.GetBool("observability.healthz"),
		},
		Upstreams: raw.Upstreams,
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("requestTimeoutSeconds must be > 0, got %d", cfg.RequestTimeoutSeconds)
	}

	seen := make(map[string]struct{}, len(cfg.Upstreams))
	for i, upstream := range cfg.Upstreams {
		if upstream.APIBaseURL == "" {
			return Config{}, fmt.Errorf("upstreams[%d]: apiBaseUrl is required", i)
		}
		if err := upstream.ValidateSpecSource(); err != nil {
			return Config{}, fmt.Errorf("upstreams[%d]: %w", i, err)
		}
		if upstream.Prefix != "" {
			if _, dup := seen[upstream.Prefix]; dup {
				return Config{}, fmt.Errorf("upstreams[%d]: duplicate prefix %q", i, upstream.Prefix)
			}
			seen[upstream.Prefix] = struct{}{}
		}
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration. Values come from the config
// file (if any), FLOWLINE_* environment variables, and flag bindings, in
// ascending precedence.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	APIPort     int    `mapstructure:"api_port"`
	Debug       bool   `mapstructure:"debug"`

	WorkflowsDir string `mapstructure:"workflows_dir"`

	NATSEnabled       bool   `mapstructure:"nats_enabled"`
	NATSEmbedded      bool   `mapstructure:"nats_embedded"`
	NATSURL           string `mapstructure:"nats_url"`
	NATSStream        string `mapstructure:"nats_stream"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix"`

	DirectoryURL string `mapstructure:"directory_url"`

	// StaticRoles maps role id -> comma separated "id:email" members. It is
	// the fallback directory when no directory_url is configured, mostly
	// useful for local development.
	StaticRoles map[string]string `mapstructure:"static_roles"`

	SLAPollSpec string `mapstructure:"sla_poll_spec"`
}

func SetDefaults() {
	viper.SetDefault("database_url", "flowline.db")
	viper.SetDefault("api_port", 8585)
	viper.SetDefault("debug", false)
	viper.SetDefault("workflows_dir", "./workflows")
	viper.SetDefault("nats_enabled", true)
	viper.SetDefault("nats_embedded", true)
	viper.SetDefault("nats_url", "")
	viper.SetDefault("nats_stream", "FLOWLINE")
	viper.SetDefault("nats_subject_prefix", "flowline")
	viper.SetDefault("directory_url", "")
	viper.SetDefault("sla_poll_spec", "@every 1m")
}

func Load() (*Config, error) {
	SetDefaults()

	viper.SetEnvPrefix("FLOWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("api_port %d out of range", cfg.APIPort)
	}
	return &cfg, nil
}

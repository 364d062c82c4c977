package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the funnel engine.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	DB          struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	N8N struct {
		BaseURL        string `mapstructure:"base_url"`
		APIKey         string `mapstructure:"api_key"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"n8n"`
	Webhook struct {
		SigningSecret string `mapstructure:"signing_secret"`
	} `mapstructure:"webhook"`
	Auth struct {
		Issuer        string `mapstructure:"issuer"`
		DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment. An
// explicit path overrides the default search locations.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "DEV")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("n8n.timeout_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize the issuer url (strip trailing slash if any) so users can
	// paste it straight from the admin console
	config.Auth.Issuer = strings.TrimRight(strings.TrimSpace(config.Auth.Issuer), "/")
	config.N8N.BaseURL = strings.TrimRight(strings.TrimSpace(config.N8N.BaseURL), "/")

	if config.N8N.APIKey == "" {
		return nil, fmt.Errorf("n8n.api_key is required")
	}

	return &config, nil
}

// N8NTimeout returns the configured outbound call timeout.
func (c *Config) N8NTimeout() time.Duration {
	return time.Duration(c.N8N.TimeoutSeconds) * time.Second
}

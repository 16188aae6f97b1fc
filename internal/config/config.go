// Package config loads DriveWatch configuration from file, environment, and
// defaults, and builds the process logger from it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/drivewatch/internal/drive"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	Appliance ApplianceConfig `mapstructure:"appliance"`
	Poll      PollConfig      `mapstructure:"poll"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// ApplianceConfig identifies the UniFi Drive appliance to poll.
type ApplianceConfig struct {
	Host      string        `mapstructure:"host"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Credentials converts the appliance section into a credential set.
func (a ApplianceConfig) Credentials() drive.Credentials {
	return drive.Credentials{
		Host:      a.Host,
		Username:  a.Username,
		Password:  a.Password,
		VerifyTLS: a.VerifyTLS,
	}
}

// PollConfig controls the polling coordinator.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig holds the local HTTP API listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address as host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the snapshot history store settings.
type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// MQTTConfig holds the MQTT publisher settings. An empty broker URL disables
// publishing.
type MQTTConfig struct {
	BrokerURL         string        `mapstructure:"broker_url"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	ClientID          string        `mapstructure:"client_id"`
	TopicPrefix       string        `mapstructure:"topic_prefix"`
	QoS               int           `mapstructure:"qos"`
	Retain            bool          `mapstructure:"retain"`
	Timeout           time.Duration `mapstructure:"timeout"`
	HADiscovery       bool          `mapstructure:"ha_discovery"`
	HADiscoveryPrefix string        `mapstructure:"ha_discovery_prefix"`
}

// Load reads configuration from file and environment variables.
// Precedence: explicit file path, then drivewatch.yaml in ./, ./configs, or
// /etc/drivewatch, then DW_* environment variables, then defaults.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("appliance.host", "")
	v.SetDefault("appliance.username", "")
	v.SetDefault("appliance.password", "")
	v.SetDefault("appliance.verify_tls", false)
	v.SetDefault("appliance.timeout", "10s")
	v.SetDefault("poll.interval", "30s")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8099)
	v.SetDefault("database.path", "./data/drivewatch.db")
	v.SetDefault("database.retention", "720h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "drivewatch")
	v.SetDefault("mqtt.topic_prefix", "drivewatch")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", true)
	v.SetDefault("mqtt.timeout", "10s")
	v.SetDefault("mqtt.ha_discovery", true)
	v.SetDefault("mqtt.ha_discovery_prefix", "homeassistant")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("drivewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/drivewatch")
	}

	// Environment variable support: DW_APPLIANCE_PASSWORD=...
	v.SetEnvPrefix("DW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// Parse unmarshals and validates the resolved configuration.
func Parse(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Appliance.Credentials().Validate(); err != nil {
		return nil, err
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 30 * time.Second
	}
	return &cfg, nil
}

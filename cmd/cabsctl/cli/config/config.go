// Package config provides configuration management for the cabsctl CLI.
package config

// Config represents the cabsctl CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig holds the cabsd endpoint and credential cabsctl talks to.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

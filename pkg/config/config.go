// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Plasticity configuration
	Plasticity PlasticityConfig `mapstructure:"plasticity"`

	// Maintenance configuration
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`

	// Similarity configuration
	Similarity SimilarityConfig `mapstructure:"similarity"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // ladybug, neo4j
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// PlasticityConfig points at the plasticity settings to load.
type PlasticityConfig struct {
	// Preset names a built-in configuration; ConfigPath overrides it with
	// a YAML file when set.
	Preset     string `mapstructure:"preset"`
	ConfigPath string `mapstructure:"config_path"`
}

// MaintenanceConfig holds maintenance cycle settings.
type MaintenanceConfig struct {
	CheckpointDir string `mapstructure:"checkpoint_dir"`
}

// SimilarityConfig holds semantic similarity settings.
type SimilarityConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Database defaults
	viper.SetDefault("database.driver", "ladybug")
	viper.SetDefault("database.uri", "./axon_db")
	viper.SetDefault("database.username", "")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "")

	// Plasticity defaults
	viper.SetDefault("plasticity.preset", "default")
	viper.SetDefault("plasticity.config_path", "")

	// Maintenance defaults
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("maintenance.checkpoint_dir", fmt.Sprintf("%s/.axon/checkpoints", home))
	}

	// Similarity defaults
	viper.SetDefault("similarity.enabled", false)
	viper.SetDefault("similarity.model", "all-MiniLM-L6-v2")
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if uri := os.Getenv("AXON_DATABASE_URI"); uri != "" {
		config.Database.URI = uri
	}
	if driver := os.Getenv("AXON_DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if level := os.Getenv("AXON_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

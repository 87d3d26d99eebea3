package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Matching MatchingConfig `yaml:"matching"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int     `yaml:"port"`
	Host           string  `yaml:"host"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	DBName        string `yaml:"dbname"`
	SSLMode       string `yaml:"sslmode"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot"`
}

// AWSConfig holds object store configuration for group videos
type AWSConfig struct {
	Region        string `yaml:"region"`
	VideoBucket   string `yaml:"video_bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// AuthConfig holds the identity provider's token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// MatchingConfig holds group and pairing rules
type MatchingConfig struct {
	MaxGroupSize      int           `yaml:"max_group_size"`
	ReadyThreshold    int           `yaml:"ready_threshold"`
	JoinCodeAttempts  int           `yaml:"join_code_attempts"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	SweepSchedule     string        `yaml:"sweep_schedule"`
	VideoUploadExpiry time.Duration `yaml:"video_upload_expiry"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults and checks required fields
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = 5
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 10
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	m := &c.Matching
	if m.MaxGroupSize == 0 {
		m.MaxGroupSize = 5
	}
	if m.ReadyThreshold == 0 {
		m.ReadyThreshold = 3
	}
	if m.JoinCodeAttempts == 0 {
		m.JoinCodeAttempts = 10
	}
	if m.StaleAfter == 0 {
		m.StaleAfter = 6 * time.Hour
	}
	if m.SweepSchedule == "" {
		m.SweepSchedule = "@every 15m"
	}
	if m.VideoUploadExpiry == 0 {
		m.VideoUploadExpiry = 10 * time.Minute
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.AWS.VideoBucket == "" {
		return fmt.Errorf("aws.video_bucket is required")
	}
	if m.ReadyThreshold > m.MaxGroupSize {
		return fmt.Errorf("matching.ready_threshold (%d) exceeds max_group_size (%d)", m.ReadyThreshold, m.MaxGroupSize)
	}

	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

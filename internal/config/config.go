package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"

	"go.uber.org/zap"
)

// Config holds all configuration settings
type Config struct {
	Server struct {
		Port int    `json:"port"`
		Host string `json:"host"`
	} `json:"server"`
	Database struct {
		DSN string `json:"dsn"`
	} `json:"database"`
	JWT struct {
		Secret      string        `json:"secret"`
		TokenExpiry time.Duration `json:"token_expiry"`
	} `json:"jwt"`
	Mailbox struct {
		Host                 string        `json:"host"`
		Port                 int           `json:"port"`
		Address              string        `json:"address"`
		Password             string        `json:"password"`
		Folder               string        `json:"folder"`
		PollInterval         time.Duration `json:"poll_interval"`
		KeepaliveInterval    time.Duration `json:"keepalive_interval"`
		RecencyWindow        time.Duration `json:"recency_window"`
		DedupMax             int           `json:"dedup_max"`
		BackoffFloor         time.Duration `json:"backoff_floor"`
		BackoffCeiling       time.Duration `json:"backoff_ceiling"`
		MaxConsecutiveErrors int           `json:"max_consecutive_errors"`
	} `json:"mailbox"`
	Webhook struct {
		BaseURL string `json:"base_url"`
	} `json:"webhook"`
	Sessions struct {
		Timeout            time.Duration `json:"timeout"`
		SweepInterval      time.Duration `json:"sweep_interval"`
		DefaultWaitTimeout time.Duration `json:"default_wait_timeout"`
	} `json:"sessions"`
	Logging struct {
		Level string `json:"level"`
		Path  string `json:"path"`
	} `json:"logging"`
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	// Validate path to prevent directory traversal
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("config path must be absolute")
	}

	// Check if file exists and is a regular file
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file error: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("Failed to close config file", zap.Error(closeErr))
		}
	}()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.Host = "localhost"
	config.Database.DSN = "file:otp.db?cache=shared&mode=rwc"
	config.JWT.Secret = "your-secret-key" // This should be changed in production
	config.JWT.TokenExpiry = 24 * time.Hour
	config.Mailbox.Port = 993
	config.Mailbox.Folder = "INBOX"
	config.Mailbox.PollInterval = 5 * time.Second
	config.Mailbox.KeepaliveInterval = 30 * time.Second
	config.Mailbox.RecencyWindow = 24 * time.Hour
	config.Mailbox.DedupMax = 1000
	config.Mailbox.BackoffFloor = 5 * time.Second
	config.Mailbox.BackoffCeiling = 5 * time.Minute
	config.Mailbox.MaxConsecutiveErrors = 5
	config.Webhook.BaseURL = "http://localhost:8080"
	config.Sessions.Timeout = 10 * time.Minute
	config.Sessions.SweepInterval = time.Minute
	config.Sessions.DefaultWaitTimeout = 2 * time.Minute
	config.Logging.Level = "info"
	config.Logging.Path = "server.log"
	return config
}

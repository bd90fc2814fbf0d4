package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sms-relay-server/pkg/logger"

	"github.com/joho/godotenv"
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
	Provider struct {
		BaseURL    string        `json:"base_url"`
		APIKey     string        `json:"api_key"`
		AccountRef string        `json:"account_ref"`
		Originator string        `json:"originator"`
		Timeout    time.Duration `json:"timeout"`
	} `json:"provider"`
	Poller struct {
		InboxInterval  time.Duration `json:"inbox_interval"`
		InboxDirection string        `json:"inbox_direction"`
		InboxPageSize  int           `json:"inbox_page_size"`
		CallsInterval  time.Duration `json:"calls_interval"`
		CallsBatchSize int           `json:"calls_batch_size"`
	} `json:"poller"`
	Ingest struct {
		Dir           string        `json:"dir"`
		Extension     string        `json:"extension"`
		Delimiter     string        `json:"delimiter"`
		DebounceDelay time.Duration `json:"debounce_delay"`
	} `json:"ingest"`
	AMQP struct {
		URL      string `json:"url"`
		Exchange string `json:"exchange"`
	} `json:"amqp"`
	JWT struct {
		Secret      string        `json:"secret"`
		TokenExpiry time.Duration `json:"token_expiry"`
	} `json:"jwt"`
	Bootstrap struct {
		OperatorName     string `json:"operator_name"`
		OperatorPassword string `json:"-"` // environment only, never from the config file
	} `json:"bootstrap"`
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

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	config.ApplyEnvOverrides()
	return config, nil
}

// ApplyEnvOverrides lets secrets come from the environment (or a .env file)
// instead of the config file, so credentials stay out of checked-in JSON.
func (c *Config) ApplyEnvOverrides() {
	// A missing .env file is fine; real env vars still apply.
	_ = godotenv.Load()

	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.AMQP.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("OPERATOR_NAME"); v != "" {
		c.Bootstrap.OperatorName = v
	}
	if v := os.Getenv("OPERATOR_PASSWORD"); v != "" {
		c.Bootstrap.OperatorPassword = v
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.Host = "localhost"
	config.Database.DSN = "file:relay.db?cache=shared&mode=rwc"
	config.Provider.BaseURL = "https://api.example-sms.test/v1"
	config.Provider.Originator = "UNKNOWN"
	config.Provider.Timeout = 30 * time.Second
	config.Poller.InboxInterval = 30 * time.Second
	config.Poller.InboxDirection = "MO"
	config.Poller.InboxPageSize = 50
	config.Poller.CallsInterval = 15 * time.Second
	config.Poller.CallsBatchSize = 500
	config.Ingest.Dir = "drop"
	config.Ingest.Extension = ".txt"
	config.Ingest.Delimiter = ";"
	config.Ingest.DebounceDelay = 2 * time.Second
	config.AMQP.Exchange = "sms-relay.events"
	config.JWT.Secret = "change-me" // This should be changed in production
	config.JWT.TokenExpiry = 24 * time.Hour
	config.Logging.Level = "info"
	config.Logging.Path = "relay.log"
	return config
}

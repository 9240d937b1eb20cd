package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration shared by the smoke driver and the fake marketplace
type Config struct {
	Target   TargetConfig   `yaml:"target" json:"target"`
	Account  AccountConfig  `yaml:"account" json:"account"`
	Profile  ProfileConfig  `yaml:"profile" json:"profile"`
	Product  ProductConfig  `yaml:"product" json:"product"`
	Purchase PurchaseConfig `yaml:"purchase" json:"purchase"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	Logs     LogConfig      `yaml:"logs" json:"logs"`
	Mock     MockConfig     `yaml:"mock" json:"mock"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// TargetConfig describes the API under test
type TargetConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout is a Go duration; empty or "0" disables the client timeout.
	Timeout   string `yaml:"timeout" json:"timeout"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

type AccountConfig struct {
	FullName string `yaml:"full_name" json:"full_name"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
	Phone    string `yaml:"phone" json:"phone"`
	Address  string `yaml:"address" json:"address"`
}

type ProfileConfig struct {
	Username string `yaml:"username" json:"username"`
	Location string `yaml:"location" json:"location"`
}

type ProductConfig struct {
	Title             string `yaml:"title" json:"title"`
	Price             string `yaml:"price" json:"price"`
	OriginAddress     string `yaml:"origin_address" json:"origin_address"`
	Type              string `yaml:"type" json:"type"`
	Quantity          string `yaml:"quantity" json:"quantity"`
	AvailableQuantity string `yaml:"available_quantity" json:"available_quantity"`
	Description       string `yaml:"description" json:"description"`
	Comment           string `yaml:"comment" json:"comment"`
	// ImagePath is uploaded as the "images" field. Empty uploads a generated placeholder.
	ImagePath string `yaml:"image_path" json:"image_path"`
}

type PurchaseConfig struct {
	Quantity int `yaml:"quantity" json:"quantity"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type JWTConfig struct {
	Secret       string `yaml:"secret" json:"-"`
	ExpiresHours int    `yaml:"expires_hours" json:"expires_hours"`
}

// MockConfig configures the fake marketplace server
type MockConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Database  string `yaml:"database" json:"database"`
	// UploadDir receives product images; empty keeps only their names
	UploadDir string    `yaml:"upload_dir" json:"upload_dir"`
	JWT       JWTConfig `yaml:"jwt" json:"jwt"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL:   "http://localhost:5000/api",
			Timeout:   "0",
			UserAgent: "market-smoke/1.0",
		},
		Account: AccountConfig{
			FullName: "John Doe",
			Email:    "john@example.com",
			Password: "StrongPass1!",
			Phone:    "+1234567890",
			Address:  "123 Main St",
		},
		Profile: ProfileConfig{
			Username: "johnny",
			Location: "New York",
		},
		Product: ProductConfig{
			Title:             "Fresh Apples",
			Price:             "100",
			OriginAddress:     "Farm 123",
			Type:              "Fruit",
			Quantity:          "50",
			AvailableQuantity: "50",
			Description:       "Freshly picked apples",
			Comment:           "Available for immediate delivery",
			ImagePath:         "apple.jpg",
		},
		Purchase: PurchaseConfig{Quantity: 2},
		History: HistoryConfig{
			Enabled: false,
			Path:    "./data/smoke-history.db",
		},
		Logs: LogConfig{Level: "info"},
		Mock: MockConfig{
			Host:     "127.0.0.1",
			Port:     5000,
			Database: ":memory:",
			JWT: JWTConfig{
				ExpiresHours: 24,
			},
		},
	}
}

// Load loads configuration from ./configs/<SMOKE_ENV>.yaml and environment variables.
// A missing file is not an error; the defaults are used instead.
func Load() (*Config, error) {
	environment := os.Getenv("SMOKE_ENV")
	if environment == "" {
		environment = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", environment))
}

// LoadFile loads configuration from the given path on top of Default.
func LoadFile(configPath string) (*Config, error) {
	config := Default()

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	overrideWithEnv(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ClientTimeout returns the parsed target timeout. Zero means no timeout.
func (c *Config) ClientTimeout() time.Duration {
	d, err := parseTimeout(c.Target.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// MockAddr returns the listen address of the fake marketplace
func (c *Config) MockAddr() string {
	return fmt.Sprintf("%s:%d", c.Mock.Host, c.Mock.Port)
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if val := os.Getenv("SMOKE_BASE_URL"); val != "" {
		config.Target.BaseURL = val
	}
	if val := os.Getenv("SMOKE_TIMEOUT"); val != "" {
		config.Target.Timeout = val
	}
	if val := os.Getenv("SMOKE_EMAIL"); val != "" {
		config.Account.Email = val
	}
	if val := os.Getenv("SMOKE_PASSWORD"); val != "" {
		config.Account.Password = val
	}
	if val, ok := os.LookupEnv("SMOKE_IMAGE_PATH"); ok {
		config.Product.ImagePath = val
	}
	if val := os.Getenv("SMOKE_HISTORY_ENABLED"); val != "" {
		config.History.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SMOKE_HISTORY_PATH"); val != "" {
		config.History.Path = val
	}
	if val := os.Getenv("SMOKE_LOG_LEVEL"); val != "" {
		config.Logs.Level = val
	}

	if val := os.Getenv("MOCK_MARKET_HOST"); val != "" {
		config.Mock.Host = val
	}
	if val := os.Getenv("MOCK_MARKET_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Mock.Port = port
		}
	}
	if val := os.Getenv("MOCK_MARKET_UPLOAD_DIR"); val != "" {
		config.Mock.UploadDir = val
	}
	if val := os.Getenv("MOCK_MARKET_JWT_SECRET"); val != "" {
		config.Mock.JWT.Secret = val
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url cannot be empty")
	}
	u, err := url.Parse(config.Target.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid target.base_url: %q", config.Target.BaseURL)
	}
	if _, err := parseTimeout(config.Target.Timeout); err != nil {
		return fmt.Errorf("invalid target.timeout: %w", err)
	}

	if config.Account.Email == "" {
		return fmt.Errorf("account.email cannot be empty")
	}
	if config.Account.Password == "" {
		return fmt.Errorf("account.password cannot be empty")
	}

	if config.Purchase.Quantity <= 0 {
		return fmt.Errorf("invalid purchase.quantity: %d", config.Purchase.Quantity)
	}

	if config.History.Enabled && config.History.Path == "" {
		return fmt.Errorf("history.path cannot be empty when history is enabled")
	}

	switch strings.ToLower(config.Logs.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logs.level: %q", config.Logs.Level)
	}

	if config.Mock.Port <= 0 || config.Mock.Port > 65535 {
		return fmt.Errorf("invalid mock.port: %d", config.Mock.Port)
	}

	return nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// fileExists checks if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// Package config loads the application configuration from an optional YAML
// file with environment variable overrides. A .env file in the working
// directory is picked up before the environment is read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/homeledger/internal/plaid"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Plaid    plaid.Config   `yaml:"plaid"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "homeledger.db"},
		Plaid: plaid.Config{
			BaseURL:      "https://sandbox.plaid.com",
			ClientName:   "HomeLedger",
			Language:     "en",
			CountryCodes: []string{"US"},
			Products:     []string{"transactions"},
			SyncPageSize: 100,
			Usage: plaid.Usage{
				FreeMonthlyCallLimit:    200,
				WarningThresholdPercent: 80,
			},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if it
// exists, then environment variables. An empty path checks homeledger.yml in
// the working directory.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = "homeledger.yml"
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "HOMELEDGER_ADDR")
	setString(&cfg.Database.Path, "HOMELEDGER_DB_PATH")

	if err := setBool(&cfg.Plaid.Enabled, "PLAID_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.Plaid.BaseURL, "PLAID_BASE_URL")
	setString(&cfg.Plaid.ClientID, "PLAID_CLIENT_ID")
	setString(&cfg.Plaid.Secret, "PLAID_SECRET")
	setString(&cfg.Plaid.ClientName, "PLAID_CLIENT_NAME")
	setString(&cfg.Plaid.Language, "PLAID_LANGUAGE")
	setList(&cfg.Plaid.CountryCodes, "PLAID_COUNTRY_CODES")
	setList(&cfg.Plaid.Products, "PLAID_PRODUCTS")
	setString(&cfg.Plaid.Webhook, "PLAID_WEBHOOK")
	setString(&cfg.Plaid.RedirectURI, "PLAID_REDIRECT_URI")
	if err := setInt(&cfg.Plaid.SyncPageSize, "PLAID_SYNC_PAGE_SIZE"); err != nil {
		return err
	}
	if err := setInt(&cfg.Plaid.Usage.FreeMonthlyCallLimit, "PLAID_FREE_MONTHLY_CALL_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Plaid.Usage.WarningThresholdPercent, "PLAID_WARNING_THRESHOLD_PERCENT"); err != nil {
		return err
	}
	return nil
}

// normalize backfills list settings an explicit config emptied out.
func (c *Config) normalize() {
	if len(c.Plaid.CountryCodes) == 0 {
		c.Plaid.CountryCodes = []string{"US"}
	}
	if len(c.Plaid.Products) == 0 {
		c.Plaid.Products = []string{"transactions"}
	}
}

func setString(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func setList(target *[]string, key string) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*target = out
}

func setBool(target *bool, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func setInt(target *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = parsed
	return nil
}

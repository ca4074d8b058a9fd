package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duksung/maccheese/go/clients/maccheese_client"
	"github.com/duksung/maccheese/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the optional yaml file. Zero values keep the defaults.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Polling struct {
		TickInterval    time.Duration `yaml:"tick_interval"`
		BidInterval     time.Duration `yaml:"bid_interval"`
		DetailInterval  time.Duration `yaml:"detail_interval"`
		SweepInterval   time.Duration `yaml:"sweep_interval"`
		ResyncThreshold *int          `yaml:"resync_threshold"`
	} `yaml:"polling"`
	Monitor struct {
		Watch           []int64 `yaml:"watch"`
		AutoResolveLost bool    `yaml:"auto_resolve_lost"`
	} `yaml:"monitor"`
}

// Settings is the resolved process configuration.
type Settings struct {
	BaseURL         string
	APITimeout      time.Duration
	TickInterval    time.Duration
	BidInterval     time.Duration
	DetailInterval  time.Duration
	SweepInterval   time.Duration
	ResyncThreshold int
	AutoResolveLost bool
	Watch           []models.AuctionID

	Port         string
	IdentityFile string
	NATSURL      string
	LogLevel     string
	LogFormat    string
}

func defaultSettings() Settings {
	return Settings{
		BaseURL:         maccheese_client.DefaultBaseURL,
		APITimeout:      10 * time.Second,
		TickInterval:    time.Second,
		BidInterval:     time.Second,
		DetailInterval:  4 * time.Second,
		SweepInterval:   5 * time.Second,
		ResyncThreshold: 3,
		Port:            "8090",
		IdentityFile:    "identity.yaml",
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// loadSettings layers defaults, the yaml file and the environment, in that order.
// A missing config file is not an error.
func loadSettings() (Settings, error) {
	s := defaultSettings()

	path := getEnv("CONFIG_FILE", "config.yaml")
	config, err := loadConfig(path)
	switch {
	case err == nil:
		s.apply(config)
	case errors.Is(err, os.ErrNotExist):
	default:
		return s, err
	}

	s.BaseURL = getEnv("API_BASE_URL", s.BaseURL)
	s.APITimeout = getEnvAsDuration("API_TIMEOUT", s.APITimeout)
	s.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", s.SweepInterval)
	s.ResyncThreshold = getEnvAsInt("RESYNC_THRESHOLD", s.ResyncThreshold)
	s.Port = getEnv("PORT", s.Port)
	s.IdentityFile = getEnv("IDENTITY_FILE", s.IdentityFile)
	s.NATSURL = getEnv("NATS_URL", s.NATSURL)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnv("LOG_FORMAT", s.LogFormat)

	if raw := os.Getenv("WATCH_AUCTIONS"); raw != "" {
		ids, err := parseAuctionIDs(raw)
		if err != nil {
			return s, fmt.Errorf("invalid WATCH_AUCTIONS: %w", err)
		}
		s.Watch = ids
	}

	return s, nil
}

func (s *Settings) apply(c *Config) {
	if c.API.BaseURL != "" {
		s.BaseURL = c.API.BaseURL
	}
	if c.API.Timeout > 0 {
		s.APITimeout = c.API.Timeout
	}
	if c.Polling.TickInterval > 0 {
		s.TickInterval = c.Polling.TickInterval
	}
	if c.Polling.BidInterval > 0 {
		s.BidInterval = c.Polling.BidInterval
	}
	if c.Polling.DetailInterval > 0 {
		s.DetailInterval = c.Polling.DetailInterval
	}
	if c.Polling.SweepInterval > 0 {
		s.SweepInterval = c.Polling.SweepInterval
	}
	if c.Polling.ResyncThreshold != nil {
		s.ResyncThreshold = *c.Polling.ResyncThreshold
	}
	s.AutoResolveLost = c.Monitor.AutoResolveLost
	for _, id := range c.Monitor.Watch {
		s.Watch = append(s.Watch, models.AuctionID(id))
	}
}

func parseAuctionIDs(raw string) ([]models.AuctionID, error) {
	var ids []models.AuctionID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := models.ParseAuctionID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidInput marks a configuration that failed structural validation
var ErrInvalidInput = errors.New("config: invalid input")

const (
	DefaultListen                 = ":8080"
	DefaultRefreshIntervalSeconds = 20
	DefaultMaxTrips               = 2
)

type Config struct {
	APIKey string `yaml:"api_key" validate:"required,len=32"`
	Listen string `yaml:"listen"`

	// RefreshIntervalSeconds is the tracker cycle length
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds" validate:"gte=0"`

	// StalenessCeilingFactor multiplies each endpoint TTL into the maximum
	// age of cached data still served during an upstream outage
	StalenessCeilingFactor int `yaml:"staleness_ceiling_factor" validate:"gte=0"`

	Journeys []JourneyConfig `yaml:"journeys" validate:"required,min=1,dive"`
}

// JourneyConfig is one tracked stop pair, or one tracked Commuter Rail train
// number when Train is set.
type JourneyConfig struct {
	Name       string `yaml:"name"`
	DepartFrom string `yaml:"depart_from" validate:"required"`
	ArriveAt   string `yaml:"arrive_at" validate:"required"`
	MaxTrips   int    `yaml:"max_trips" validate:"gte=0,lte=10"`
	Train      string `yaml:"train" validate:"omitempty,len=3,numeric"`
}

// RefreshInterval is the tracker cycle length as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// Load reads and validates the configuration file, applying defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	applyEnvironment(&cfg)
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	names := map[string]bool{}
	for _, journey := range cfg.Journeys {
		if names[journey.Name] {
			return nil, fmt.Errorf("%w: duplicate journey name %q", ErrInvalidInput, journey.Name)
		}
		names[journey.Name] = true
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.RefreshIntervalSeconds == 0 {
		cfg.RefreshIntervalSeconds = DefaultRefreshIntervalSeconds
	}

	for i := range cfg.Journeys {
		journey := &cfg.Journeys[i]
		if journey.MaxTrips == 0 {
			journey.MaxTrips = DefaultMaxTrips
		}
		if journey.Name == "" {
			journey.Name = fmt.Sprintf("%s - %s", journey.DepartFrom, journey.ArriveAt)
		}
	}
}

func applyEnvironment(cfg *Config) {
	env := GetEnvironmentVariables()

	if env["MBTALIVE_API_KEY"] != "" {
		cfg.APIKey = env["MBTALIVE_API_KEY"]
	}
	if env["MBTALIVE_LISTEN"] != "" {
		cfg.Listen = env["MBTALIVE_LISTEN"]
	}
}

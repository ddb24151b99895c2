package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "TRADEQUERY"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete tool configuration. Precedence, highest first:
// command-line flags, the YAML file, TRADEQUERY_* environment variables,
// built-in defaults.
type Config struct {
	API       APIConfig       `yaml:"api" split_words:"true"`
	Retrieval RetrievalConfig `yaml:"retrieval" split_words:"true"`
	Cache     CacheConfig     `yaml:"cache" split_words:"true"`
	Reference ReferenceConfig `yaml:"reference" split_words:"true"`
	Output    OutputConfig    `yaml:"output" split_words:"true"`
	Log       LogConfig       `yaml:"log" split_words:"true"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url" split_words:"true" default:"https://api.census.gov/data/timeseries/intltrade" validate:"required,url"`
	Key        string        `yaml:"key" split_words:"true" validate:"omitempty,len=40"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true" default:"30s" validate:"gt=0"`
	RateLimit  float64       `yaml:"rate_limit" split_words:"true" default:"2" validate:"gt=0"`
	Burst      int           `yaml:"burst" split_words:"true" default:"2" validate:"min=1"`
	MaxRetries int           `yaml:"max_retries" split_words:"true" default:"1" validate:"min=0,max=5"`
	UserAgent  string        `yaml:"user_agent" split_words:"true" default:"tradequery/0.1"`
}

type RetrievalConfig struct {
	ChunkSize   int    `yaml:"chunk_size" split_words:"true" default:"5" validate:"min=1,max=50"`
	Concurrency int    `yaml:"concurrency" split_words:"true" default:"1" validate:"min=1,max=8"`
	Wildcard    string `yaml:"wildcard" split_words:"true" default:"*"`
}

// CacheConfig configures the response cache. An empty path disables it.
type CacheConfig struct {
	Path string        `yaml:"path" split_words:"true"`
	TTL  time.Duration `yaml:"ttl" split_words:"true" default:"24h" validate:"min=0"`
}

type ReferenceConfig struct {
	Dir         string `yaml:"dir" split_words:"true"`
	Concordance string `yaml:"concordance" split_words:"true"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir" split_words:"true" default:"saved_data" validate:"required"`
	ByYear bool   `yaml:"by_year" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level" split_words:"true" default:"info" validate:"oneof=trace debug info warn warning error"`
	Format string `yaml:"format" split_words:"true" default:"text" validate:"oneof=text json"`
}

// Load reads the environment, then overlays the YAML file at path when path is
// not empty, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: load from env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		fileConfig, explicit, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: load from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, explicit, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fileValues records settings whose zero value is meaningful, so a file can
// set them explicitly.
type fileValues struct {
	API struct {
		MaxRetries *int `yaml:"max_retries"`
	} `yaml:"api"`
	Output struct {
		ByYear *bool `yaml:"by_year"`
	} `yaml:"output"`
}

func loadFromFile(path string) (*Config, fileValues, error) {
	var explicit fileValues
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, explicit, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, explicit, err
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, explicit, err
	}
	return &cfg, explicit, nil
}

// mergeConfigs copies every non-zero file value, plus the explicitly set
// ones, over the env config.
func mergeConfigs(file Config, explicit fileValues, env Config) Config {
	setString(&env.API.BaseURL, file.API.BaseURL)
	setString(&env.API.Key, file.API.Key)
	setDuration(&env.API.Timeout, file.API.Timeout)
	if file.API.RateLimit != 0 {
		env.API.RateLimit = file.API.RateLimit
	}
	setInt(&env.API.Burst, file.API.Burst)
	if explicit.API.MaxRetries != nil {
		env.API.MaxRetries = *explicit.API.MaxRetries
	}
	setString(&env.API.UserAgent, file.API.UserAgent)

	setInt(&env.Retrieval.ChunkSize, file.Retrieval.ChunkSize)
	setInt(&env.Retrieval.Concurrency, file.Retrieval.Concurrency)
	setString(&env.Retrieval.Wildcard, file.Retrieval.Wildcard)

	setString(&env.Cache.Path, file.Cache.Path)
	setDuration(&env.Cache.TTL, file.Cache.TTL)

	setString(&env.Reference.Dir, file.Reference.Dir)
	setString(&env.Reference.Concordance, file.Reference.Concordance)

	setString(&env.Output.Dir, file.Output.Dir)
	if explicit.Output.ByYear != nil {
		env.Output.ByYear = *explicit.Output.ByYear
	}

	setString(&env.Log.Level, file.Log.Level)
	setString(&env.Log.Format, file.Log.Format)
	return env
}

func setString(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value time.Duration) {
	if value != 0 {
		*dst = value
	}
}

// Validate checks the struct tags. It runs again after flags are applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Runner  ClientConfig  `yaml:"runner"`
	Backend ClientConfig  `yaml:"backend"`
	Sim     SimConfig     `yaml:"sim"`
	ALNS    ALNSConfig    `yaml:"alns"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	Port         int      `yaml:"port" validate:"min=1,max=65535"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

// ClientConfig configures an outbound HTTP collaborator.
type ClientConfig struct {
	BaseURL    string        `yaml:"baseURL" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"maxRetries" validate:"min=0,max=10"`
}

type SimConfig struct {
	TickInterval    time.Duration `yaml:"tickInterval" validate:"gt=0"`
	QueueSize       int           `yaml:"queueSize" validate:"min=1"`
	DefaultSpeed    float64       `yaml:"defaultSpeed" validate:"gt=0"`
	DefaultPolicy   string        `yaml:"defaultPolicy" validate:"oneof=greedy alns batch"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes" validate:"min=1024"`
}

type ALNSConfig struct {
	Iterations      int     `yaml:"iterations" validate:"min=0"`
	RemovalFraction float64 `yaml:"removalFraction" validate:"gt=0,lte=1"`
	Cooling         float64 `yaml:"cooling" validate:"gt=0,lt=1"`
	InitialTemp     float64 `yaml:"initialTemp" validate:"min=0"`
	LocalSearch     bool    `yaml:"localSearch"`
	// Seed fixes the search RNG; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

type StorageConfig struct {
	DatabaseURL string `yaml:"databaseURL"`
	RedisURL    string `yaml:"redisURL"`
	Migrate     bool   `yaml:"migrate"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 5000},
		Runner:  ClientConfig{BaseURL: "http://localhost:8090", Timeout: 5 * time.Second, MaxRetries: 2},
		Backend: ClientConfig{BaseURL: "http://localhost:8080", Timeout: 10 * time.Second},
		Sim: SimConfig{
			TickInterval:    100 * time.Millisecond,
			QueueSize:       64,
			DefaultSpeed:    1.0,
			DefaultPolicy:   "greedy",
			MaxMessageBytes: 64 << 20,
		},
		ALNS:    ALNSConfig{Iterations: 50, RemovalFraction: 0.2, Cooling: 0.95},
		Storage: StorageConfig{Migrate: true},
	}
}

// Load builds a Config from defaults, then the optional YAML file at path,
// then a .env file in the working directory, then environment variables.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Server.Port) }

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Server.Port)
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = strings.Split(v, ",")
	}
	str("RUNNER_BASE_URL", &c.Runner.BaseURL)
	dur("RUNNER_TIMEOUT", &c.Runner.Timeout)
	num("RUNNER_MAX_RETRIES", &c.Runner.MaxRetries)
	str("BACKEND_BASE_URL", &c.Backend.BaseURL)
	dur("BACKEND_TIMEOUT", &c.Backend.Timeout)
	dur("TICK_INTERVAL", &c.Sim.TickInterval)
	num("SUBSCRIBER_QUEUE", &c.Sim.QueueSize)
	str("DEFAULT_POLICY", &c.Sim.DefaultPolicy)
	num("ALNS_ITERATIONS", &c.ALNS.Iterations)
	if v := os.Getenv("ALNS_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("ALNS_SEED: %w", err))
		} else {
			c.ALNS.Seed = n
		}
	}
	str("DATABASE_URL", &c.Storage.DatabaseURL)
	str("REDIS_URL", &c.Storage.RedisURL)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		c.Storage.Migrate = v != "false"
	}
	return errors.Join(errs...)
}

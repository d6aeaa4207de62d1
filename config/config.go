package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // scratch images ship without a zone database

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "./config/config.yaml"

type HTTP struct {
	Addr           string        `yaml:"addr"`           // ":8080"
	ReadTimeout    time.Duration `yaml:"readTimeout"`    // "15s"
	WriteTimeout   time.Duration `yaml:"writeTimeout"`   // "30s"
	IdleTimeout    time.Duration `yaml:"idleTimeout"`    // "60s"
	AllowedOrigins []string      `yaml:"allowedOrigins"` // ["*"]
}

// GRPC is the admin inspection endpoint. An empty addr disables it.
type GRPC struct {
	Addr string `yaml:"addr"`
}

type WS struct {
	PingInterval time.Duration `yaml:"pingInterval"` // "25s"
	WriteTimeout time.Duration `yaml:"writeTimeout"` // "10s"
	ReadLimit    int64         `yaml:"readLimit"`    // bytes per frame
	SendBuffer   int           `yaml:"sendBuffer"`   // queued frames per connection
	RateLimit    float64       `yaml:"rateLimit"`    // actions per second
	RateBurst    int           `yaml:"rateBurst"`
}

type Rooms struct {
	Timezone string `yaml:"timezone"` // IANA name for fallback round titles, "Local" by default
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // pointing-poker
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	WS      WS      `yaml:"ws"`
	Rooms   Rooms   `yaml:"rooms"`
	Logging Logging `yaml:"logging"`
}

// LoadConfig reads an optional .env file, then the YAML file at CONFIG_PATH.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		c.GRPC.Addr = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Logging.Env = v
	}
}

func (c *Config) validate() error {
	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}

	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = 25 * time.Second
	}
	if c.WS.WriteTimeout == 0 {
		c.WS.WriteTimeout = 10 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 64 << 10
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.RateLimit == 0 {
		c.WS.RateLimit = 20
	}
	if c.WS.RateBurst == 0 {
		c.WS.RateBurst = 40
	}
	if c.WS.PingInterval < 0 || c.WS.WriteTimeout < 0 {
		return errors.New("ws timings must be positive")
	}
	if c.WS.ReadLimit < 0 || c.WS.SendBuffer < 0 || c.WS.RateLimit < 0 || c.WS.RateBurst < 0 {
		return errors.New("ws limits must be positive")
	}

	if c.Rooms.Timezone == "" {
		c.Rooms.Timezone = "Local"
	}
	if _, err := time.LoadLocation(c.Rooms.Timezone); err != nil {
		return fmt.Errorf("rooms.timezone: %w", err)
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "pointing-poker"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

// Location resolves rooms.timezone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Rooms.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

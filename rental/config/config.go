package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/transtrike/Rent-A-Car-Exam/pkg/auth"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/kafka"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/logger"
	"github.com/transtrike/Rent-A-Car-Exam/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"RENTAL_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"RENTAL_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"30s"`
	WriteTimeout time.Duration
}

type Sweep struct {
	Interval time.Duration `yaml:"interval" envconfig:"SWEEP_INTERVAL" default:"1m"`
}

type Config struct {
	Server       HTTPServer `yaml:"server"`
	Database     postgres.Database
	Kafka        kafka.Config
	JWT          auth.Config
	Sweep        Sweep
	StoreTimeout time.Duration `yaml:"storeTimeout" envconfig:"STORE_TIMEOUT" default:"5s"`
	Log          logger.Log    `yaml:"log"`
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = timeout
	}
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

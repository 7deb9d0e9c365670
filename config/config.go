// Package config loads process configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Load loads the configuration from environment variables and an optional
// .env file. Variables already set take precedence over the file.
func Load[T any](cfg T) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	return env.Parse(cfg)
}

// Config holds the configuration of the matchbook commands.
type Config struct {
	Instrument    uint32        `env:"INSTRUMENT,required"`
	QueueDir      string        `env:"QUEUE_DIR" envDefault:"/dev/shm"`
	QueueCapacity int           `env:"QUEUE_CAPACITY" envDefault:"65536"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"50us"`
	BookDepthLog  int           `env:"BOOK_DEPTH_LOG" envDefault:"5"`
	MetricsAddr   string        `env:"METRICS_ADDR"` // Metrics are not served if empty.

	Feed FeedConfig `envPrefix:"FEED_"`
}

// FeedConfig holds the configuration of the order feeder.
type FeedConfig struct {
	Count       int           `env:"COUNT" envDefault:"10000"`
	Price       float64       `env:"PRICE" envDefault:"100"`
	PriceStdDev float64       `env:"PRICE_STDDEV" envDefault:"5"`
	Amount      float64       `env:"AMOUNT" envDefault:"1"`
	Seed        int64         `env:"SEED" envDefault:"0"`
	Backoff     time.Duration `env:"BACKOFF" envDefault:"100us"`
}

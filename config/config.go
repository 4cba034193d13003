package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// BatchProcessing configuration for the ingest side
	BatchProcessing struct {
		// Maximum number of properties to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`

		// Queue buffer size (number of pending batches)
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"10"`
	}

	// Crawler configuration
	Crawler struct {
		// Number of properties buffered before a batch is dispatched
		BatchSize int `env:"CRAWL_BATCH_SIZE" envDefault:"100"`

		// Stop after this many consecutive pages without any listings
		MaxEmptyPages int `env:"CRAWL_MAX_EMPTY_PAGES" envDefault:"3"`

		// Stop after this many consecutive pages without new listings
		MaxPagesWithoutNew int `env:"CRAWL_MAX_PAGES_WITHOUT_NEW" envDefault:"3"`

		// Bounded number of concurrent detail-page requests
		ConcurrentRequests int `env:"CRAWL_CONCURRENT_REQUESTS" envDefault:"2"`

		// Politeness delay between requests in seconds
		DownloadDelay int `env:"CRAWL_DOWNLOAD_DELAY" envDefault:"2"`

		// Per-request timeout in seconds
		DownloadTimeout int `env:"CRAWL_DOWNLOAD_TIMEOUT" envDefault:"30"`

		// Directory for resumable crawl checkpoints
		StateDir string `env:"CRAWL_STATE_DIR" envDefault:".spider_state"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"database/funda.db"`
	}

	Server struct {
		Port string `env:"SERVER_PORT" envDefault:"5250"`
	}
}

func LoadConfig() (*Config, error) {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

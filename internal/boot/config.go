package boot

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env    string `env:"ENV,default=dev"`
	Server struct {
		Port    string `env:"PORT,default=4000"`
		Origins string `env:"ALLOWED_ORIGINS,default=*"`
	}
	Metrics struct {
		Port string `env:"METRICS_PORT,default=8081"`
	}
	Database struct {
		// sqlite DSN, e.g. file:chatmirror.db or file::memory:?cache=shared
		DSN string `env:"DATABASE_DSN,default=file:chatmirror.db"`
	}
	Importer struct {
		PayloadDir string `env:"PAYLOAD_DIR,default=payloads"`
	}
}

func Load() (*Config, error) {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	config := &Config{}
	if err := envconfig.Process(context.Background(), config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	// Group and Consumer identify this process in the stream consumer group.
	// Consumer defaults to the hostname.
	Group    string `env:"REDIS_GROUP, default=kafka-connector"`
	Consumer string `env:"REDIS_CONSUMER"`
	MaxLen   int64  `env:"REDIS_STREAM_MAXLEN, default=0"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	return &cfg, nil
}

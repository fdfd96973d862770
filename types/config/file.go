package config

import (
	"bytes"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// LoadFile reads a YAML config on top of the defaults, then applies overrides.
// Keys the file leaves out keep their default values; unknown keys are rejected.
func LoadFile(path string, overrides ...ContainerOption) (*StepfireConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, overrides...)
}

func Parse(data []byte, overrides ...ContainerOption) (*StepfireConfig, error) {
	cfg := defaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	}

	if cfg.RedisConfig != nil && cfg.RedisConfig.Channel == "" {
		cfg.RedisConfig.Channel = DefaultRedisChannel
	}
	if cfg.RabbitMQConfig != nil {
		cfg.MQDriver = RabbitMQ
		if cfg.RabbitMQConfig.ContentType == "" {
			cfg.RabbitMQConfig.ContentType = DefaultRabbitMQContentType
		}
	}

	return build(cfg, overrides)
}

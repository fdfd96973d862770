package config

import (
	"fmt"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
)

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

// ParseStorageDriver maps a driver name to its enum value.
func ParseStorageDriver(name string) (StorageDriver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unsupported storage driver %q", name)
}

func (d *StorageDriver) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseStorageDriver(name)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

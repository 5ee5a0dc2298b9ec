package worker

import (
	"encoding/json"
	"fmt"
	"os"
)

// Environment variable contract between the router (which launches workers)
// and the worker process. The router sets these on every spawn, whether the
// worker runs as a subprocess or inside a container.
const (
	EnvInstanceName = "DISCERNUS_INSTANCE_NAME"
	EnvRedisURL     = "REDIS_URL"
	EnvTaskID       = "DISCERNUS_TASK_ID"
	EnvTaskType     = "DISCERNUS_TASK_TYPE"
	EnvTaskPayload  = "DISCERNUS_TASK_PAYLOAD"
	EnvToolCommand  = "DISCERNUS_TOOL_COMMAND" // JSON-encoded argv
)

// Config holds the worker process runtime configuration, loaded from
// environment variables set by the router.
type Config struct {
	InstanceName string
	RedisURL     string
	TaskID       string
	TaskType     string
	TaskPayload  string
	ToolCommand  []string
}

// LoadConfig reads and validates worker configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		InstanceName: os.Getenv(EnvInstanceName),
		RedisURL:     os.Getenv(EnvRedisURL),
		TaskID:       os.Getenv(EnvTaskID),
		TaskType:     os.Getenv(EnvTaskType),
		TaskPayload:  os.Getenv(EnvTaskPayload),
	}

	if cfg.InstanceName == "" {
		return nil, fmt.Errorf("%s must be set", EnvInstanceName)
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("%s must be set", EnvRedisURL)
	}
	if cfg.TaskID == "" {
		return nil, fmt.Errorf("%s must be set", EnvTaskID)
	}
	if cfg.TaskType == "" {
		return nil, fmt.Errorf("%s must be set", EnvTaskType)
	}

	commandJSON := os.Getenv(EnvToolCommand)
	if commandJSON == "" {
		return nil, fmt.Errorf("%s must be set", EnvToolCommand)
	}
	if err := json.Unmarshal([]byte(commandJSON), &cfg.ToolCommand); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvToolCommand, err)
	}
	if len(cfg.ToolCommand) == 0 {
		return nil, fmt.Errorf("%s must contain at least one element", EnvToolCommand)
	}

	return cfg, nil
}

// EncodeToolCommand serializes an argv for the EnvToolCommand variable.
func EncodeToolCommand(command []string) (string, error) {
	data, err := json.Marshal(command)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool command: %w", err)
	}
	return string(data), nil
}

package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
			Bind: "loopback",
		},
		Session: SessionConfig{
			TTLHours:             24,
			SweepIntervalMin:     60,
			SweepStartupDelaySec: 10,
		},
		Database: DatabaseConfig{
			Store: "sqlite",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

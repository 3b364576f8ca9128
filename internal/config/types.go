package config

// Config is the root configuration for the ephemer backend.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProviderConfig holds credentials for a single AI backend. API keys may
// be written as ${ENV_VAR} references in the config file.
type ProviderConfig struct {
	APIKey string `yaml:"apiKey,omitempty"`
}

// ProvidersConfig holds credentials for all supported AI backends.
// Providers without a key are not registered and their models are
// unavailable.
type ProvidersConfig struct {
	OpenAI   ProviderConfig `yaml:"openai,omitempty"`
	Gemini   ProviderConfig `yaml:"gemini,omitempty"`
	DeepSeek ProviderConfig `yaml:"deepseek,omitempty"`
}

// SessionConfig controls temporary session lifetimes and cleanup.
type SessionConfig struct {
	TTLHours             int `yaml:"ttlHours,omitempty"`             // default expiry window for new sessions
	SweepIntervalMin     int `yaml:"sweepIntervalMinutes,omitempty"` // cleanup scheduler tick
	SweepStartupDelaySec int `yaml:"sweepStartupDelaySeconds,omitempty"`
}

// DatabaseConfig selects and locates the persistence backend.
type DatabaseConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
	Path  string `yaml:"path,omitempty"`  // sqlite file path; ":memory:" for ephemeral
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

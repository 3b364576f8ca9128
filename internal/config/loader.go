package config

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so API keys can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Providers.OpenAI.APIKey = expandEnvVars(cfg.Providers.OpenAI.APIKey)
	cfg.Providers.Gemini.APIKey = expandEnvVars(cfg.Providers.Gemini.APIKey)
	cfg.Providers.DeepSeek.APIKey = expandEnvVars(cfg.Providers.DeepSeek.APIKey)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = def.Server.Bind
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = def.Session.TTLHours
	}
	if cfg.Session.SweepIntervalMin == 0 {
		cfg.Session.SweepIntervalMin = def.Session.SweepIntervalMin
	}
	if cfg.Session.SweepStartupDelaySec == 0 {
		cfg.Session.SweepStartupDelaySec = def.Session.SweepStartupDelaySec
	}
	if cfg.Database.Store == "" {
		cfg.Database.Store = def.Database.Store
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// applyEnvOverrides applies EPHEMER_* environment variables on top of the
// file-based config. Credentials may also come from the conventional
// provider variables (OPENAI_API_KEY and friends).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EPHEMER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EPHEMER_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("EPHEMER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("EPHEMER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.Gemini.APIKey == "" {
		cfg.Providers.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Providers.DeepSeek.APIKey == "" {
		cfg.Providers.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
}

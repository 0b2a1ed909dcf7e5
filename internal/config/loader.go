package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hiregauge/hiregauge/internal/ports"
)

// envPrefix namespaces the service's environment variables. A double
// underscore descends into nested sections: HIREGAUGE_SERVER__ADDR sets
// server.addr, HIREGAUGE_LOG_LEVEL sets log_level.
const envPrefix = "HIREGAUGE_"

// Load builds a Config by layering, lowest to highest precedence:
//  1. compiled defaults (Default)
//  2. the YAML file at path, when path is non-empty
//  3. HIREGAUGE_-prefixed environment variables
//
// The merged result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, ports.NewConfigError("file", fmt.Errorf("load %s: %w", path, err))
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, ports.NewConfigError("env", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, ports.NewConfigError("unmarshal", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's struct tags and returns a
// ConfigError naming the first offending key.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return ports.NewConfigError("config", err)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return ports.NewConfigError(
			configKey(first.Namespace()),
			fmt.Errorf("failed %q validation", first.Tag()),
		)
	}
	return ports.NewConfigError("config", err)
}

// configKey turns a validator namespace like "Config.Server.Addr" into
// the koanf-style key users set, e.g. "server.addr".
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

// toSnake lowers a CamelCase field name into the snake_case used by
// koanf tags. Initialisms collapse: "PostgresDSN" becomes
// "postgres_dsn", "BaseURL" becomes "base_url".
func toSnake(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				sb.WriteByte('_')
			}
			sb.WriteRune(r - 'A' + 'a')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

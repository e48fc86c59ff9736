package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RETRIEVALD_"

// sections are the top-level config keys an environment variable may target.
// The first underscore after a known section becomes the key separator:
//
//	RETRIEVALD_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout
//	RETRIEVALD_STORES_CORE_DIR         -> stores.core_dir
//	RETRIEVALD_EMBEDDING_BASE_URL      -> embedding.base_url
var sections = []string{"server", "stores", "documents", "embedding", "responder", "telemetry", "logging"}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (RETRIEVALD_*)
//  2. YAML config file (configPath, skipped when empty or absent)
//  3. Hardcoded defaults
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// transformEnvKey maps RETRIEVALD_SECTION_SOME_KEY to section.some_key.
// Variables outside the known sections are dropped.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return ""
}

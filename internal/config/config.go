// Package config provides configuration loading for retrievald.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables prefixed with RETRIEVALD_.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/telemetry"
)

// Config holds the complete retrievald configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Stores    StoresConfig    `koanf:"stores"`
	Documents DocumentsConfig `koanf:"documents"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Responder ResponderConfig  `koanf:"responder"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Logging   logging.Config   `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoresConfig holds tenant store locations.
type StoresConfig struct {
	// CoreDir is the persistence directory of the shared core store.
	CoreDir string `koanf:"core_dir"`
	// ClientsDir is the root directory holding one store per client.
	ClientsDir string `koanf:"clients_dir"`
	// CoreSeedDir holds documents used to build the core store on first
	// start when no persisted core store exists yet.
	CoreSeedDir string `koanf:"core_seed_dir"`
}

// DocumentsConfig holds document loading and chunking configuration.
type DocumentsConfig struct {
	// ServiceURL is the external document service base URL, used only to
	// construct download links. It is never called.
	ServiceURL   string `koanf:"service_url"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

// EmbeddingConfig holds embedding API configuration.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// ResponderConfig holds answer-synthesis model configuration.
// An empty APIKey disables synthesis; queries then return the raw context.
type ResponderConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// NewDefaultConfig returns config with defaults for every field.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
		},
		Stores: StoresConfig{
			CoreDir:     "data/stores/core",
			ClientsDir:  "data/stores/clients",
			CoreSeedDir: "data/core",
		},
		Documents: DocumentsConfig{
			ServiceURL:   "http://localhost:3000",
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:8080",
			Model:   "BAAI/bge-small-en-v1.5",
		},
		Responder: ResponderConfig{
			Model: "llama-3.1-8b-instant",
		},
		Telemetry: telemetry.NewDefaultConfig(),
		Logging:   logging.NewDefaultConfig(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Stores.CoreDir == "" {
		return errors.New("core store directory required")
	}
	if c.Stores.ClientsDir == "" {
		return errors.New("clients store directory required")
	}
	if c.Documents.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Documents.ChunkSize)
	}
	if c.Documents.ChunkOverlap < 0 || c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.Documents.ChunkOverlap)
	}
	if c.Embedding.BaseURL == "" {
		return errors.New("embedding base URL required")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

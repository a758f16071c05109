// Package config provides configuration loading and structs for the ChatSphere core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Processing  ProcessingConfig  `yaml:"processing"`
	RAG         RAGConfig         `yaml:"rag"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record database and uploaded files.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	UploadDir    string `yaml:"upload_dir"`
}

// EmbeddingConfig holds embedding provider settings. Dimensions must match the
// active vector store collection; a mismatch is a fatal configuration error.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "gemini" or "mock"
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
}

// VectorStoreConfig selects the active vector backend and carries per-backend credentials.
// Exactly one backend is active at a time; switching does not migrate stored vectors.
type VectorStoreConfig struct {
	Type   string       `yaml:"type" json:"type"` // "zilliz", "qdrant", or "memory"
	Zilliz ZillizConfig `yaml:"zilliz" json:"zilliz"`
	Qdrant QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// ZillizConfig holds Zilliz Cloud connection settings.
type ZillizConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	Collection string `yaml:"collection" json:"collection"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `yaml:"url" json:"url"`
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	Collection string `yaml:"collection" json:"collection"`
}

// ProcessingConfig holds ingestion pipeline settings.
type ProcessingConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`    // words per chunk
	ChunkOverlap   int           `yaml:"chunk_overlap"` // words shared between consecutive chunks
	Workers        int           `yaml:"workers"`       // concurrent document pipeline runs
	MaxRetries     int           `yaml:"max_retries"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // per-attempt deadline for embedding and vector calls
}

// RAGConfig holds retrieval and generation settings.
type RAGConfig struct {
	TopK             int     `yaml:"top_k"`
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`
	Temperature      float32 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	Model            string  `yaml:"model"`
	Instructions     string  `yaml:"instructions"`
}

// WatchConfig holds drop-folder ingestion settings. Files appearing in the
// watched directories are registered and processed as file documents.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults, expands paths,
// and overlays credentials from the environment (a .env file is honored if present).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// applyEnv overlays secrets from the environment so credentials never need to
// live in the YAML file. Loads a .env file first when one exists.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("VECTOR_DB_TYPE"); v != "" {
		cfg.VectorStore.Type = strings.ToLower(v)
	}
	if v := os.Getenv("ZILLIZ_URI"); v != "" {
		cfg.VectorStore.Zilliz.URI = v
	}
	if v := os.Getenv("ZILLIZ_API_KEY"); v != "" {
		cfg.VectorStore.Zilliz.APIKey = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/chatsphere.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/uploads"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-004"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Zilliz.Collection == "" {
		cfg.VectorStore.Zilliz.Collection = "chatsphere_chunks"
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "chatsphere_chunks"
	}
	if cfg.Processing.ChunkSize == 0 {
		cfg.Processing.ChunkSize = 256
	}
	if cfg.Processing.ChunkOverlap == 0 {
		cfg.Processing.ChunkOverlap = 32
	}
	if cfg.Processing.Workers == 0 {
		cfg.Processing.Workers = 4
	}
	if cfg.Processing.MaxRetries == 0 {
		cfg.Processing.MaxRetries = 3
	}
	if cfg.Processing.FetchTimeout == 0 {
		cfg.Processing.FetchTimeout = 30 * time.Second
	}
	if cfg.Processing.RequestTimeout == 0 {
		cfg.Processing.RequestTimeout = 60 * time.Second
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.SimilarityCutoff == 0 {
		cfg.RAG.SimilarityCutoff = 0.6
	}
	if cfg.RAG.Temperature == 0 {
		cfg.RAG.Temperature = 0.7
	}
	if cfg.RAG.MaxTokens == 0 {
		cfg.RAG.MaxTokens = 1024
	}
	if cfg.RAG.Model == "" {
		cfg.RAG.Model = "gemini-1.5-flash-latest"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".txt", ".md", ".docx", ".xlsx"}
	}
}

// Package main is the ChatSphere CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jenilsoni-ai/chatsphere/internal/chunker"
	"github.com/jenilsoni-ai/chatsphere/internal/config"
	"github.com/jenilsoni-ai/chatsphere/internal/embedding"
	"github.com/jenilsoni-ai/chatsphere/internal/extract"
	"github.com/jenilsoni-ai/chatsphere/internal/llm"
	"github.com/jenilsoni-ai/chatsphere/internal/processor"
	"github.com/jenilsoni-ai/chatsphere/internal/rag"
	"github.com/jenilsoni-ai/chatsphere/internal/retriever"
	"github.com/jenilsoni-ai/chatsphere/internal/server"
	"github.com/jenilsoni-ai/chatsphere/internal/storage"
	"github.com/jenilsoni-ai/chatsphere/internal/vectorstore"
	"github.com/jenilsoni-ai/chatsphere/internal/watcher"
	"github.com/jenilsoni-ai/chatsphere/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/chatsphere/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("chatsphere version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ingestor := watcher.NewIngestor(components.Storage, components.Processor, logger)
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions,
			ingestor.OnFile, ingestor.OnRemove, watchOpts...)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watch.Stop()
		watch.SyncExisting()
	}

	srv := server.NewServer(
		components.Storage,
		components.Processor,
		components.Engine,
		components.Stores,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	components.Processor.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: chatsphere ingest [flags] <file>")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Failed to resolve path: %v\n", err)
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ingestor := watcher.NewIngestor(components.Storage, components.Processor, logger)
	ingestor.OnFile(path)
	components.Processor.Wait()

	docID := watcher.DocumentID(path)
	doc, err := components.Storage.GetDocument(context.Background(), docID)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if doc.Error != "" {
		fmt.Printf("Document %s: %s (%s)\n", docID, doc.ProcessingStatus, doc.Error)
		os.Exit(1)
	}
	fmt.Printf("Document %s: %s, %d chunks\n", docID, doc.ProcessingStatus, doc.ChunkCount)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: chatsphere delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	if err := components.Processor.Delete(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Stores    *vectorstore.Manager
	Processor *processor.Processor
	Completer llm.CompletionClient
	Engine    *rag.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Stores != nil {
		_ = c.Stores.Close()
	}
	if c.Completer != nil {
		_ = c.Completer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	stores, err := vectorstore.NewManager(cfg.VectorStore, embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	// A backend selected at runtime through the settings API survives restarts.
	if err := server.LoadPersistedVectorStore(ctx, store, stores); err != nil {
		logger.Warn("failed to restore vector store selection, using config", zap.Error(err))
	}
	logger.Info("vector store initialized", zap.String("type", stores.Current().Name()))

	ch, err := chunker.New(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	fetcher := processor.NewFetcher(extract.NewExtractor(), cfg.Processing.FetchTimeout)
	proc := processor.New(store, fetcher, ch, embedder, stores.Current, cfg.Processing,
		processor.WithLogger(logger))

	apiKey := cfg.Embedding.APIKey
	if cfg.Embedding.Provider == "mock" && apiKey == "" {
		apiKey = "mock"
	}
	completer, err := llm.New(ctx, cfg.RAG, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	ret := retriever.New(embedder, stores.Current, retriever.WithLogger(logger))
	engine := rag.New(ret, completer, cfg.RAG, rag.WithLogger(logger))

	return &Components{
		Storage:   store,
		Embedder:  embedder,
		Stores:    stores,
		Processor: proc,
		Completer: completer,
		Engine:    engine,
	}, nil
}

func printUsage() {
	fmt.Println(`chatsphere - RAG chatbot backend

Usage:
  chatsphere server [flags]         Start the HTTP server
  chatsphere ingest [flags] <file>  Register and process a local file
  chatsphere delete [flags] <id>    Delete a document and its vectors
  chatsphere status [flags]         Show service status
  chatsphere version                Show version
  chatsphere help                   Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/chatsphere/config.yaml)
  --debug            Enable debug logging

Ingest/Delete Flags:
  --config string    Config file path

Status Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  chatsphere server
  chatsphere ingest docs/handbook.pdf
  chatsphere delete 2f1c58d4-6c3e-5e68-9a41-3a6d1c1d7e55
  chatsphere status`)
}

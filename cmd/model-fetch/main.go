// Command model-fetch downloads the Chatterbox model artifact set into the
// local cache so the engine runtime can start offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/modelfetch"
)

const defaultRepoURL = "https://huggingface.co/ResembleAI/chatterbox/resolve/main"

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config.toml", "Path to the TOML configuration file")
	repoURL := flag.String("repo", defaultRepoURL, "Base URL of the model artifact repository")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(os.TempDir(), "model-fetch.log")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := modelfetch.New(*repoURL, cfg.Paths.ModelCacheDir, appLogger)

	appLogger.Info("Downloading model artifacts to %s", fetcher.CacheDir())
	fmt.Printf("Downloading model artifacts to %s\n", fetcher.CacheDir())

	err = fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("model download incomplete: %w", err)
	}

	fmt.Println("All model artifacts downloaded or verified.")

	return nil
}

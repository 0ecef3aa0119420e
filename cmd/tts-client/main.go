// Command tts-client is a command-line client for the speech service engine
// runtime: health checks, single-text generation, and chunked batch jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/engine"
	"github.com/book-expert/chatterbox-service/internal/language"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to convert to speech"
	flagOutputDesc   = "Output file path (.wav) or directory for chunked output"
	flagChunksDesc   = "JSON file containing text chunks to process"
	flagConfigDesc   = "Path to the TOML configuration file"
	flagLanguageDesc = "Language code for generation (defaults to configured default)"
	flagWorkersDesc  = "Number of parallel chunk workers"
	flagHealthDesc   = "Check engine health and exit"
)

// Error and log messages.
const (
	errEitherTextOrChunks = "either --text or --chunks must be provided"
	errCannotSpecifyBoth  = "cannot specify both --text and --chunks"
	defaultOutputFile     = "output.wav"
	logFileName           = "tts-client.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	output   string
	chunks   string
	config   string
	language string
	workers  int
	health   bool
}

func main() {
	err := run()
	if err != nil {
		// The logger might not be initialized yet, use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.LoadFile(flags.config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	err = language.Validate(flags.language)
	if err != nil {
		return err
	}

	lang := flags.language
	if lang == "" {
		lang = cfg.Generation.Language
	}

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
	client := engine.NewClient(cfg.Engine.ServiceURL, timeout)

	if flags.health {
		return handleHealthCheck(client)
	}

	batch := engine.NewBatchProcessor(client, cfg.Generation, flags.workers, timeout, appLogger)

	return handleExecution(batch, cfg, lang, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.output, "output", "", flagOutputDesc)
	flag.StringVar(&flags.chunks, "chunks", "", flagChunksDesc)
	flag.StringVar(&flags.config, "config", "config.toml", flagConfigDesc)
	flag.StringVar(&flags.language, "language", "", flagLanguageDesc)
	flag.IntVar(&flags.workers, "workers", 0, flagWorkersDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.Parse()

	return flags
}

func handleHealthCheck(client *engine.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), engine.HealthCheckTimeout)
	defer cancel()

	err := client.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("Engine is not healthy: %v\n", err)

		return err
	}

	fmt.Println("Engine is healthy")

	return nil
}

func handleExecution(
	batch *engine.BatchProcessor,
	cfg *config.Config,
	lang string,
	flags appFlags,
) error {
	if flags.text == "" && flags.chunks == "" {
		flag.Usage()

		return errors.New(errEitherTextOrChunks)
	}

	if flags.text != "" && flags.chunks != "" {
		return errors.New(errCannotSpecifyBoth)
	}

	if flags.text != "" {
		outputPath := flags.output
		if outputPath == "" {
			outputPath = filepath.Join(cfg.Paths.OutputDir, defaultOutputFile)
		}

		err := batch.ProcessSingleChunk(flags.text, lang, outputPath)
		if err != nil {
			return fmt.Errorf("failed to process text: %w", err)
		}

		fmt.Printf("Generated: %s\n", outputPath)

		return nil
	}

	outputDir := flags.output
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}

	err := batch.ProcessChunks(flags.chunks, outputDir, lang)
	if err != nil {
		return fmt.Errorf("failed to process chunks: %w", err)
	}

	fmt.Printf("Generated audio files in: %s\n", outputDir)

	return nil
}

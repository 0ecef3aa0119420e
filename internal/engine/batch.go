package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
)

const (
	// HealthCheckTimeout defines the timeout for health check operations.
	HealthCheckTimeout = 10 * time.Second

	filePermissions = 0o600
	dirPermissions  = 0o750

	outputFileFormat = "chunk_%04d.wav"
	defaultWorkers   = 2
)

// Static errors.
var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

func newNoChunksFoundError(path string) error {
	return fmt.Errorf("%w in %s", ErrNoChunksFound, path)
}

// BatchProcessor turns chunked text into numbered WAV files through the
// engine runtime. Chunks run in parallel under a bounded worker pool so a
// large batch does not overwhelm the runtime.
type BatchProcessor struct {
	client   *Client
	defaults config.GenerationDefaults
	workers  int
	timeout  time.Duration
	log      *logger.Logger
}

// NewBatchProcessor creates a batch processor over the given client.
// workers <= 0 selects a conservative default.
func NewBatchProcessor(
	client *Client,
	defaults config.GenerationDefaults,
	workers int,
	timeout time.Duration,
	log *logger.Logger,
) *BatchProcessor {
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &BatchProcessor{
		client:   client,
		defaults: defaults,
		workers:  workers,
		timeout:  timeout,
		log:      log,
	}
}

// ProcessChunks reads a JSON array of text chunks and generates one WAV file
// per chunk, named sequentially. A health check runs first to fail fast when
// the runtime is down; individual chunk failures are logged and the last one
// is returned, so one bad chunk does not abandon the batch.
func (b *BatchProcessor) ProcessChunks(chunksPath, outputDir, lang string) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return fmt.Errorf("failed to read chunks: %w", err)
	}

	err = os.MkdirAll(outputDir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	err = b.checkServiceHealth()
	if err != nil {
		return err
	}

	b.log.Info("Engine is healthy, processing %d chunks", len(chunks))

	return b.processChunksParallel(chunks, outputDir, lang)
}

// ProcessSingleChunk generates audio for one text string and writes it to
// outputPath.
func (b *BatchProcessor) ProcessSingleChunk(textInput, lang, outputPath string) error {
	if textInput == "" {
		return ErrTextEmpty
	}

	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	err := os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	audioData, err := b.client.GenerateSpeech(ctx, core.GenerationRequest{
		Text:         textInput,
		Language:     lang,
		Temperature:  b.defaults.Temperature,
		Exaggeration: b.defaults.Exaggeration,
		CfgWeight:    b.defaults.CfgWeight,
		Seed:         b.defaults.Seed,
		SpeedFactor:  b.defaults.SpeedFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	b.log.Info("Generated audio: %s (%d bytes)", outputPath, len(audioData))

	return nil
}

func (b *BatchProcessor) checkServiceHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), HealthCheckTimeout)
	defer cancel()

	err := b.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}

	return nil
}

func (b *BatchProcessor) processChunksParallel(chunks []string, outputDir, lang string) error {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	workerPool := make(chan struct{}, b.workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, textInput string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			outputPath := filepath.Join(
				outputDir,
				fmt.Sprintf(outputFileFormat, index+1),
			)

			err := b.ProcessSingleChunk(textInput, lang, outputPath)
			if err != nil {
				mutex.Lock()

				lastError = fmt.Errorf("chunk %d failed: %w", index+1, err)

				mutex.Unlock()
				b.log.Error("Failed to process chunk %d: %v", index+1, err)

				return
			}

			b.log.Info("Processed chunk %d/%d", index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()
	close(workerPool)

	return lastError
}

// readChunksFile reads a JSON file containing an array of text chunks.
func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, newNoChunksFoundError(chunksPath)
	}

	return chunks, nil
}

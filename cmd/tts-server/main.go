// main package for the chatterbox speech service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
	"github.com/book-expert/chatterbox-service/internal/objectstore"
	"github.com/book-expert/chatterbox-service/internal/resolver"
	"github.com/book-expert/chatterbox-service/internal/server"
	"github.com/book-expert/chatterbox-service/internal/worker"
)

// restartExitCode tells the supervisor to relaunch the process so changed
// cold configuration (model selection, device, listener) takes effect. Model
// swap without a restart is out of scope by design.
const restartExitCode = 3

const (
	defaultConfigPath = "config.toml"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(code)
}

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-server.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() (int, error) {
	configPath := flag.String(
		"config", "",
		"Path to a TOML configuration file (default: central configurator discovery)",
	)
	flag.Parse()

	// 1. Temporary logger for the bootstrap process.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return 0, err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration.
	cfg, err := loadConfig(*configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return 0, fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Final logger based on the loaded configuration.
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return 0, fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, *configPath, finalLog)
}

// loadConfig goes through the central configurator unless an explicit file
// path overrides it.
func loadConfig(configPath string, log *logger.Logger) (*config.Config, error) {
	if configPath == "" {
		return config.Load(log)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func serve(cfg *config.Config, configPath string, log *logger.Logger) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineClient := engine.NewClient(
		cfg.Engine.ServiceURL,
		time.Duration(cfg.Engine.TimeoutSeconds)*time.Second,
	)

	selection, device, caps, err := resolveStartup(ctx, cfg, engineClient, log)
	if err != nil {
		return 0, err
	}

	live := config.NewLiveState(cfg.Live())

	// The configurator is read-only; config saves always go to a file.
	savePath := configPath
	if savePath == "" {
		savePath = defaultConfigPath
	}

	apiServer := server.New(server.Options{
		Config:       cfg,
		ConfigPath:   savePath,
		Engine:       engineClient,
		Selection:    selection,
		Capabilities: caps,
		ActiveDevice: device,
		Live:         live,
		Log:          log,
	})

	startWorker(ctx, cfg, engineClient, selection, live, log)

	serverErrCh := make(chan error, 1)

	go func() {
		serverErrCh <- apiServer.ListenAndServe()
	}()

	log.System("Speech service listening on %s:%d (model: %s, device: %s)",
		cfg.Server.Host, cfg.Server.Port, selection.Kind, device)

	exitCode := 0

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received.")
	case <-apiServer.RestartRequests():
		log.System("Restart requested; exiting with restart code for the supervisor.")

		exitCode = restartExitCode
	case err = <-serverErrCh:
		if err != nil {
			return 0, err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = apiServer.Shutdown(shutdownCtx)
	if err != nil {
		log.Error("Graceful shutdown failed: %v", err)
	}

	return exitCode, nil
}

// resolveStartup waits for the engine runtime, probes its capabilities once,
// and computes the process-lifetime model selection. The probe result is
// never refreshed: a change requires a restart.
func resolveStartup(
	ctx context.Context,
	cfg *config.Config,
	engineClient *engine.Client,
	log *logger.Logger,
) (resolver.Selection, string, core.Capabilities, error) {
	waitCtx, cancel := context.WithTimeout(
		ctx, time.Duration(cfg.Engine.StartupWaitSeconds)*time.Second,
	)
	defer cancel()

	log.Info("Waiting for engine at %s (model load can take 30-90s)...", cfg.Engine.ServiceURL)

	err := engineClient.WaitReady(waitCtx)
	if err != nil {
		return resolver.Selection{}, "", core.Capabilities{},
			fmt.Errorf("engine runtime did not become ready: %w", err)
	}

	caps, err := engineClient.Capabilities(ctx)
	if err != nil {
		// Includes core.ErrModelUnavailable: with no model at all the
		// service cannot serve and must not mask the condition.
		return resolver.Selection{}, "", core.Capabilities{},
			fmt.Errorf("engine capabilities probe failed: %w", err)
	}

	device, deviceWarn := resolver.ResolveDevice(cfg.Model.Device, caps.Devices)
	if deviceWarn != nil {
		log.Warn("%s", deviceWarn.Detail)
	}

	selection := resolver.ResolveStartupModel(cfg.Model.UseMultilingual, caps.Multilingual)
	for _, warn := range selection.Warnings {
		log.Warn("%s", warn.Detail)
	}

	return selection, device, caps, nil
}

// startWorker connects to NATS and starts the batch speech worker. NATS is
// optional infrastructure: when it is unreachable the HTTP API still serves,
// and the degradation is logged.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	engineClient *engine.Client,
	selection resolver.Selection,
	live *config.LiveState,
	log *logger.Logger,
) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Warn("NATS unreachable at %s, batch worker disabled: %v", cfg.NATS.URL, err)

		return
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		log.Warn("JetStream unavailable, batch worker disabled: %v", err)

		return
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		log.Warn("Object store unavailable, batch worker disabled: %v", err)

		return
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SpeechRequestedSubject,
		store,
		engineClient,
		selection,
		live,
		log,
	)

	go func() {
		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			log.Error("Batch worker stopped: %v", runErr)
		}
	}()

	log.Info("Batch worker listening on subject: %s", cfg.NATS.SpeechRequestedSubject)
}

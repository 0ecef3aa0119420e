package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/language"
	"github.com/book-expert/chatterbox-service/internal/resolver"
	"github.com/book-expert/chatterbox-service/internal/text"
)

const handleMessageTimeout = 5 * time.Minute

// Request validation errors.
var (
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTemperatureRange indicates the temperature is outside [0.0, 1.5].
	ErrTemperatureRange = errors.New("temperature out of range")
	// ErrExaggerationRange indicates the exaggeration is outside [0.25, 2.0].
	ErrExaggerationRange = errors.New("exaggeration out of range")
	// ErrCfgWeightRange indicates the cfg weight is outside [0.2, 1.0].
	ErrCfgWeightRange = errors.New("cfg_weight out of range")
	// ErrSpeedFactorRange indicates the speed factor is outside [0.25, 4.0].
	ErrSpeedFactorRange = errors.New("speed_factor out of range")
	// ErrSeedNegative indicates a negative seed.
	ErrSeedNegative = errors.New("seed must be non-negative")
)

// NatsWorker listens for speech jobs on a NATS subject and processes them.
// The model selection is fixed at construction: it was resolved once at
// startup and a changed selection requires a process restart.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	engine         core.SpeechEngine
	selection      resolver.Selection
	live           *config.LiveState
	preprocessor   *text.Preprocessor
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	engine core.SpeechEngine,
	selection resolver.Selection,
	live *config.LiveState,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		engine:         engine,
		selection:      selection,
		live:           live,
		preprocessor:   text.NewPreprocessor(),
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	replyEvent, processErr := w.processSpeechJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process speech job for workflow %s: %v",
			event.Header.WorkflowID, processErr)

		return
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, err)
	}
}

// processSpeechJob downloads the text, resolves the request language against
// the active model, generates audio, and uploads it under a fresh key.
func (w *NatsWorker) processSpeechJob(
	ctx context.Context,
	event *SpeechRequestedEvent,
) (*AudioGeneratedEvent, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	live := w.live.Snapshot()

	requested := event.Language
	if requested == "" {
		requested = live.Generation.Language
	}

	effective, warn := resolver.ResolveLanguage(w.selection.Kind, requested)
	if warn != nil {
		w.log.Warn("Workflow %s: %s", event.Header.WorkflowID, warn.Detail)
	}

	inputText := string(textData)
	if live.Preprocessing.Enabled {
		inputText = w.preprocessor.Preprocess(inputText)
	}

	audioData, err := w.engine.GenerateSpeech(ctx, generationRequest(inputText, effective, live.Generation, event))
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return &AudioGeneratedEvent{
		Header:            event.Header,
		AudioKey:          audioKey,
		EffectiveLanguage: effective,
		LanguageWarning:   warn,
		PageNumber:        event.PageNumber,
		TotalPages:        event.TotalPages,
	}, nil
}

// generationRequest merges the event parameters with the configured
// generation defaults.
func generationRequest(
	inputText, effectiveLanguage string,
	defaults config.GenerationDefaults,
	event *SpeechRequestedEvent,
) core.GenerationRequest {
	req := core.GenerationRequest{
		Text:         inputText,
		Language:     effectiveLanguage,
		Temperature:  event.Temperature,
		Exaggeration: event.Exaggeration,
		CfgWeight:    event.CfgWeight,
		Seed:         event.Seed,
		SpeedFactor:  event.SpeedFactor,
	}

	if req.Temperature == 0 {
		req.Temperature = defaults.Temperature
	}

	if req.Exaggeration == 0 {
		req.Exaggeration = defaults.Exaggeration
	}

	if req.CfgWeight == 0 {
		req.CfgWeight = defaults.CfgWeight
	}

	if req.Seed == 0 {
		req.Seed = defaults.Seed
	}

	if req.SpeedFactor == 0 {
		req.SpeedFactor = defaults.SpeedFactor
	}

	return req
}

// publishReplyEvent marshals and responds with the AudioGeneratedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *AudioGeneratedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*SpeechRequestedEvent, error) {
	var event SpeechRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	err = validateEvent(&event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// validateEvent rejects malformed jobs before they reach the resolver or
// the engine. Zero values pass: they mean "use the configured default".
func validateEvent(event *SpeechRequestedEvent) error {
	if event.TextKey == "" {
		return ErrTextKeyEmpty
	}

	err := language.Validate(event.Language)
	if err != nil {
		return err
	}

	if event.Temperature != 0 &&
		(event.Temperature < config.MinTemperature || event.Temperature > config.MaxTemperature) {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, event.Temperature)
	}

	if event.Exaggeration != 0 &&
		(event.Exaggeration < config.MinExaggeration || event.Exaggeration > config.MaxExaggeration) {
		return fmt.Errorf("%w: got %f", ErrExaggerationRange, event.Exaggeration)
	}

	if event.CfgWeight != 0 &&
		(event.CfgWeight < config.MinCfgWeight || event.CfgWeight > config.MaxCfgWeight) {
		return fmt.Errorf("%w: got %f", ErrCfgWeightRange, event.CfgWeight)
	}

	if event.SpeedFactor != 0 &&
		(event.SpeedFactor < config.MinSpeedFactor || event.SpeedFactor > config.MaxSpeedFactor) {
		return fmt.Errorf("%w: got %f", ErrSpeedFactorRange, event.SpeedFactor)
	}

	if event.Seed < 0 {
		return fmt.Errorf("%w: got %d", ErrSeedNegative, event.Seed)
	}

	return nil
}

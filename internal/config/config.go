// Package config provides the persisted configuration for the
// chatterbox-service.
//
// Configuration is two-tier. Cold fields (server, model, engine, nats, paths)
// take effect only at process start: changing them requires a restart, which
// keeps the expensive model load out of the request path. Live fields
// (generation defaults, preprocessing) are read per request. The split is
// enforced structurally through the Cold and Live accessors rather than by
// convention.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/book-expert/chatterbox-service/internal/language"
	"github.com/book-expert/chatterbox-service/internal/resolver"
)

// Parameter bounds, matching the ranges the engine accepts.
const (
	MinTemperature  = 0.0
	MaxTemperature  = 1.5
	MinExaggeration = 0.25
	MaxExaggeration = 2.0
	MinCfgWeight    = 0.2
	MaxCfgWeight    = 1.0
	MinSpeedFactor  = 0.25
	MaxSpeedFactor  = 4.0

	minPort = 1
	maxPort = 65535

	configFilePermissions = 0o600
)

// Validation errors. Malformed or out-of-range values are reported with
// these sentinels instead of being silently corrected at use sites.
var (
	ErrInvalidPort        = errors.New("server port out of range")
	ErrInvalidDevice      = errors.New("invalid device setting")
	ErrInvalidLanguage    = errors.New("invalid default language")
	ErrTemperatureRange   = errors.New("temperature out of range")
	ErrExaggerationRange  = errors.New("exaggeration out of range")
	ErrCfgWeightRange     = errors.New("cfg_weight out of range")
	ErrSpeedFactorRange   = errors.New("speed_factor out of range")
	ErrSeedNegative       = errors.New("seed must be non-negative")
	ErrEngineURLEmpty     = errors.New("engine service URL cannot be empty")
	ErrTimeoutNotPositive = errors.New("engine timeout must be positive")
)

// ServerConfig holds the HTTP API listener settings. Cold.
type ServerConfig struct {
	Host       string `toml:"host"       json:"host"`
	Port       int    `toml:"port"       json:"port"`
	EnableCORS bool   `toml:"enable_cors" json:"enable_cors"`
}

// ModelConfig holds the model selection intent. Cold: the effective model is
// resolved once at startup and never swapped mid-process.
type ModelConfig struct {
	// UseMultilingual records user intent, not reality: whether the
	// multilingual model is actually served also depends on the engine
	// capability probe at startup.
	UseMultilingual bool   `toml:"use_multilingual" json:"use_multilingual"`
	Device          string `toml:"device"           json:"device"`
}

// EngineConfig holds the connection settings for the model runtime. Cold.
type EngineConfig struct {
	ServiceURL         string `toml:"service_url"          json:"service_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds"      json:"timeout_seconds"`
	StartupWaitSeconds int    `toml:"startup_wait_seconds" json:"startup_wait_seconds"`
}

// GenerationDefaults holds the synthesis parameters applied when a request
// leaves them unset. Live: read per request, no restart needed.
type GenerationDefaults struct {
	Language     string  `toml:"language"     json:"language"`
	Temperature  float64 `toml:"temperature"  json:"temperature"`
	Exaggeration float64 `toml:"exaggeration" json:"exaggeration"`
	CfgWeight    float64 `toml:"cfg_weight"   json:"cfg_weight"`
	Seed         int     `toml:"seed"         json:"seed"`
	SpeedFactor  float64 `toml:"speed_factor" json:"speed_factor"`
}

// PreprocessingConfig toggles text preprocessing before generation. Live.
type PreprocessingConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

// NATSConfig holds the configuration for NATS. Cold.
type NATSConfig struct {
	URL                    string `toml:"url"                       json:"url"`
	SpeechRequestedSubject string `toml:"speech_requested_subject"  json:"speech_requested_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" json:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths. Cold.
type PathsConfig struct {
	BaseLogsDir   string `toml:"base_logs_dir"   json:"base_logs_dir"`
	ModelCacheDir string `toml:"model_cache_dir" json:"model_cache_dir"`
	OutputDir     string `toml:"output_dir"      json:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"              json:"server"`
	Model         ModelConfig         `toml:"model"               json:"model"`
	Engine        EngineConfig        `toml:"engine"              json:"engine"`
	Generation    GenerationDefaults  `toml:"generation_defaults" json:"generation_defaults"`
	Preprocessing PreprocessingConfig `toml:"preprocessing"       json:"preprocessing"`
	NATS          NATSConfig          `toml:"nats"                json:"nats"`
	Paths         PathsConfig         `toml:"paths"               json:"paths"`
}

// ColdFields groups every section that only takes effect at process start.
type ColdFields struct {
	Server ServerConfig
	Model  ModelConfig
	Engine EngineConfig
	NATS   NATSConfig
	Paths  PathsConfig
}

// LiveFields groups every section applied per request.
type LiveFields struct {
	Generation    GenerationDefaults
	Preprocessing PreprocessingConfig
}

// Cold returns the restart-bound sections of the configuration.
func (c *Config) Cold() ColdFields {
	return ColdFields{
		Server: c.Server,
		Model:  c.Model,
		Engine: c.Engine,
		NATS:   c.NATS,
		Paths:  c.Paths,
	}
}

// Live returns the per-request sections of the configuration.
func (c *Config) Live() LiveFields {
	return LiveFields{
		Generation:    c.Generation,
		Preprocessing: c.Preprocessing,
	}
}

// Default returns the configuration used when the file is missing or leaves
// keys unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8004,
			EnableCORS: true,
		},
		Model: ModelConfig{
			UseMultilingual: true,
			Device:          resolver.DeviceAuto,
		},
		Engine: EngineConfig{
			ServiceURL:         "http://127.0.0.1:8100",
			TimeoutSeconds:     300,
			StartupWaitSeconds: 120,
		},
		Generation: GenerationDefaults{
			Language:     language.English,
			Temperature:  0.8,
			Exaggeration: 0.5,
			CfgWeight:    0.5,
			Seed:         0,
			SpeedFactor:  1.0,
		},
		Preprocessing: PreprocessingConfig{Enabled: true},
		NATS: NATSConfig{
			URL:                    "nats://127.0.0.1:4222",
			SpeechRequestedSubject: "speech.requested",
			AudioObjectStoreBucket: "SPEECH_AUDIO",
		},
		Paths: PathsConfig{
			BaseLogsDir:   os.TempDir(),
			ModelCacheDir: "",
			OutputDir:     "output",
		},
	}
}

// Load loads the configuration through the central configurator. The document
// is unmarshaled over the defaults, so keys it leaves unset keep their
// documented default while explicitly configured values, including zero
// values, survive as written.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile reads a TOML configuration file directly. A missing file is not
// an error: the defaults apply. As with Load, the file is unmarshaled over
// the defaults and explicit values are never second-guessed; anything out of
// range fails validation instead of being corrected.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates the configuration and rewrites the file wholesale. This is
// the only mutation path; configuration never changes implicitly.
func (c *Config) Save(path string) error {
	err := c.Validate()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	err = os.WriteFile(path, data, configFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}

	return nil
}

// Validate checks every field against its allowed range and returns a
// sentinel validation error for the first violation found.
func (c *Config) Validate() error {
	err := c.validateCold()
	if err != nil {
		return err
	}

	return c.validateLive()
}

func (c *Config) validateCold() error {
	if c.Server.Port < minPort || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.Model.Device {
	case resolver.DeviceAuto, resolver.DeviceCUDA, resolver.DeviceMPS, resolver.DeviceCPU:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDevice, c.Model.Device)
	}

	if c.Engine.ServiceURL == "" {
		return ErrEngineURLEmpty
	}

	if c.Engine.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrTimeoutNotPositive, c.Engine.TimeoutSeconds)
	}

	return nil
}

func (c *Config) validateLive() error {
	gen := c.Generation

	if !language.Supported(gen.Language) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, gen.Language)
	}

	if gen.Temperature < MinTemperature || gen.Temperature > MaxTemperature {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, gen.Temperature)
	}

	if gen.Exaggeration < MinExaggeration || gen.Exaggeration > MaxExaggeration {
		return fmt.Errorf("%w: got %f", ErrExaggerationRange, gen.Exaggeration)
	}

	if gen.CfgWeight < MinCfgWeight || gen.CfgWeight > MaxCfgWeight {
		return fmt.Errorf("%w: got %f", ErrCfgWeightRange, gen.CfgWeight)
	}

	if gen.SpeedFactor < MinSpeedFactor || gen.SpeedFactor > MaxSpeedFactor {
		return fmt.Errorf("%w: got %f", ErrSpeedFactorRange, gen.SpeedFactor)
	}

	if gen.Seed < 0 {
		return fmt.Errorf("%w: got %d", ErrSeedNegative, gen.Seed)
	}

	return nil
}

// RestartNeeded reports whether applying the new configuration requires a
// process restart, i.e. whether any cold field changed.
func RestartNeeded(oldCfg, newCfg *Config) bool {
	return oldCfg.Cold() != newCfg.Cold()
}

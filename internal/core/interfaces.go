// Package core defines the domain types and interfaces shared across the
// chatterbox-service packages.
package core

import (
	"context"
	"errors"
)

// ErrModelUnavailable indicates that the engine runtime has no loadable model
// at all. Unlike the multilingual fallback, this condition is fatal: the
// service cannot generate any speech and must not start serving.
var ErrModelUnavailable = errors.New("no TTS model available in engine runtime")

// ModelKind identifies which model variant the engine runtime is serving.
type ModelKind string

const (
	// KindMultilingual is the 23-language Chatterbox model.
	KindMultilingual ModelKind = "multilingual"
	// KindEnglishOnly is the smaller English-only Chatterbox model.
	KindEnglishOnly ModelKind = "english_only"
)

// WarningCode classifies a non-fatal degradation.
type WarningCode string

const (
	// WarnMultilingualUnavailable is emitted once at startup when the
	// multilingual model was requested but the engine cannot serve it.
	WarnMultilingualUnavailable WarningCode = "multilingual_unavailable_fallback"
	// WarnLanguageDowngraded is emitted per request when a non-English
	// language is requested while the English-only model is active.
	WarnLanguageDowngraded WarningCode = "language_downgraded_to_english"
	// WarnDeviceFallback is emitted when the configured accelerator device
	// is not functional and the engine falls back to CPU.
	WarnDeviceFallback WarningCode = "device_fallback"
	// WarnDeviceInvalid is emitted when the configured device string is not
	// one of the recognized settings.
	WarnDeviceInvalid WarningCode = "device_setting_invalid"
)

// Warning is an observable, non-fatal degradation notice. Every fallback path
// in the service produces one; nothing degrades silently.
type Warning struct {
	Code   WarningCode `json:"code"`
	Detail string      `json:"detail"`
}

// Capabilities reports what the engine runtime can actually do in the current
// environment. It is probed exactly once at startup and treated as immutable
// for the remainder of the process lifetime.
type Capabilities struct {
	// Multilingual is true when the multilingual model implementation is
	// loadable in the engine environment.
	Multilingual bool `json:"multilingual"`
	// Loaded is true when at least one model variant is loaded and ready.
	Loaded bool `json:"loaded"`
	// Devices lists the functional compute devices, e.g. ["cuda", "cpu"].
	Devices []string `json:"devices"`
	// SampleRate is the engine output sample rate in Hz.
	SampleRate int `json:"sample_rate"`
}

// GenerationRequest carries the parameters for a single speech generation.
// Language must already be resolved against the active model before the
// request reaches the engine.
type GenerationRequest struct {
	Text         string
	Language     string
	Temperature  float64
	Exaggeration float64
	CfgWeight    float64
	Seed         int
	SpeedFactor  float64
}

// SpeechEngine is the interface to the standalone Chatterbox model runtime.
type SpeechEngine interface {
	GenerateSpeech(ctx context.Context, req GenerationRequest) ([]byte, error)
	Capabilities(ctx context.Context) (Capabilities, error)
	HealthCheck(ctx context.Context) error
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

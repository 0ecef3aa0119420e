// Package worker provides a NATS worker that processes batch speech jobs.
package worker

import (
	"github.com/book-expert/events"

	"github.com/book-expert/chatterbox-service/internal/core"
)

// SpeechRequestedEvent asks the service to synthesize one chunk of text. The
// text itself lives in the object store under TextKey; the event carries the
// per-request generation parameters. Zero-valued numeric parameters mean
// "use the configured default". The shared event schema carries no language
// field, so the speech payloads are defined here around its header.
type SpeechRequestedEvent struct {
	Header       events.EventHeader `json:"header"`
	TextKey      string             `json:"text_key"`
	Language     string             `json:"language,omitempty"`
	Temperature  float64            `json:"temperature,omitempty"`
	Exaggeration float64            `json:"exaggeration,omitempty"`
	CfgWeight    float64            `json:"cfg_weight,omitempty"`
	Seed         int                `json:"seed,omitempty"`
	SpeedFactor  float64            `json:"speed_factor,omitempty"`
	PageNumber   int                `json:"page_number"`
	TotalPages   int                `json:"total_pages"`
}

// AudioGeneratedEvent is the reply to a speech request. EffectiveLanguage is
// the language actually used after fallback resolution; when it differs from
// the requested one, LanguageWarning says so.
type AudioGeneratedEvent struct {
	Header            events.EventHeader `json:"header"`
	AudioKey          string             `json:"audio_key"`
	EffectiveLanguage string             `json:"effective_language"`
	LanguageWarning   *core.Warning      `json:"language_warning,omitempty"`
	PageNumber        int                `json:"page_number"`
	TotalPages        int                `json:"total_pages"`
}

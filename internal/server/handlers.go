package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/language"
	"github.com/book-expert/chatterbox-service/internal/resolver"
)

// Response headers carrying generation metadata alongside the WAV body.
const (
	headerEffectiveLanguage = "X-Effective-Language"
	headerLanguageWarning   = "X-Language-Warning"
	headerSampleRate        = "X-Sample-Rate"
	headerAudioDuration     = "X-Audio-Duration"
)

var errTextRequired = errors.New("text is required")

// generateRequest is the JSON body of POST /api/v1/tts. Unset numeric fields
// fall back to the configured generation defaults.
type generateRequest struct {
	Text         string   `json:"text"`
	Language     string   `json:"language,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Exaggeration *float64 `json:"exaggeration,omitempty"`
	CfgWeight    *float64 `json:"cfg_weight,omitempty"`
	Seed         *int     `json:"seed,omitempty"`
	SpeedFactor  *float64 `json:"speed_factor,omitempty"`
}

type statusResponse struct {
	ActiveModelKind    core.ModelKind `json:"active_model_kind"`
	ActiveDevice       string         `json:"active_device"`
	SupportedLanguages []string       `json:"supported_languages"`
	Loaded             bool           `json:"loaded"`
	DefaultLanguage    string         `json:"default_language"`
	StartupWarnings    []core.Warning `json:"startup_warnings,omitempty"`
}

type saveConfigResponse struct {
	Saved         bool `json:"saved"`
	RestartNeeded bool `json:"restart_needed"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	err := s.engine.HealthCheck(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "loaded": s.caps.Loaded})
}

// handleStatus reports the effective model selection. The UI reads this to
// decide which language dropdown entries to enable.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	live := s.live.Snapshot()

	writeJSON(w, http.StatusOK, statusResponse{
		ActiveModelKind:    s.selection.Kind,
		ActiveDevice:       s.activeDevice,
		SupportedLanguages: language.Codes(),
		Loaded:             s.caps.Loaded,
		DefaultLanguage:    live.Generation.Language,
		StartupWarnings:    s.selection.Warnings,
	})
}

// handleGenerate synthesizes speech for a single request. An unsupported
// language code is rejected here, before resolution; a supported language
// the active model cannot honor degrades to English with a warning header.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid request body"})

		return
	}

	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: errTextRequired.Error()})

		return
	}

	err = language.Validate(req.Language)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})

		return
	}

	live := s.live.Snapshot()

	genReq, err := s.buildGenerationRequest(&req, live)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})

		return
	}

	effective, warn := resolver.ResolveLanguage(s.selection.Kind, genReq.Language)
	if warn != nil {
		s.log.Warn("%s", warn.Detail)
	}

	genReq.Language = effective

	audioData, err := s.engine.GenerateSpeech(r.Context(), genReq)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: err.Error()})

		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set(headerEffectiveLanguage, effective)

	if warn != nil {
		w.Header().Set(headerLanguageWarning, string(warn.Code))
	}

	info, parseErr := audio.ParseWAV(audioData)
	if parseErr != nil {
		s.log.Warn("Generated audio is not parseable WAV: %v", parseErr)
	} else {
		w.Header().Set(headerSampleRate, strconv.Itoa(info.SampleRate))
		w.Header().Set(headerAudioDuration, info.Duration.String())
	}

	_, err = w.Write(audioData)
	if err != nil {
		s.log.Error("Failed to stream audio response: %v", err)
	}
}

// buildGenerationRequest merges the request with the live defaults,
// preprocesses the text, and range-checks every parameter.
func (s *Server) buildGenerationRequest(
	req *generateRequest,
	live config.LiveFields,
) (core.GenerationRequest, error) {
	defaults := live.Generation

	genReq := core.GenerationRequest{
		Text:         req.Text,
		Language:     req.Language,
		Temperature:  defaults.Temperature,
		Exaggeration: defaults.Exaggeration,
		CfgWeight:    defaults.CfgWeight,
		Seed:         defaults.Seed,
		SpeedFactor:  defaults.SpeedFactor,
	}

	if genReq.Language == "" {
		genReq.Language = defaults.Language
	}

	if req.Temperature != nil {
		genReq.Temperature = *req.Temperature
	}

	if req.Exaggeration != nil {
		genReq.Exaggeration = *req.Exaggeration
	}

	if req.CfgWeight != nil {
		genReq.CfgWeight = *req.CfgWeight
	}

	if req.Seed != nil {
		genReq.Seed = *req.Seed
	}

	if req.SpeedFactor != nil {
		genReq.SpeedFactor = *req.SpeedFactor
	}

	if live.Preprocessing.Enabled {
		genReq.Text = s.preprocessor.Preprocess(genReq.Text)
	}

	err := validateGenerationParams(genReq)
	if err != nil {
		return core.GenerationRequest{}, err
	}

	return genReq, nil
}

func validateGenerationParams(req core.GenerationRequest) error {
	if req.Temperature < config.MinTemperature || req.Temperature > config.MaxTemperature {
		return fmt.Errorf("%w: got %f", config.ErrTemperatureRange, req.Temperature)
	}

	if req.Exaggeration < config.MinExaggeration || req.Exaggeration > config.MaxExaggeration {
		return fmt.Errorf("%w: got %f", config.ErrExaggerationRange, req.Exaggeration)
	}

	if req.CfgWeight < config.MinCfgWeight || req.CfgWeight > config.MaxCfgWeight {
		return fmt.Errorf("%w: got %f", config.ErrCfgWeightRange, req.CfgWeight)
	}

	if req.SpeedFactor < config.MinSpeedFactor || req.SpeedFactor > config.MaxSpeedFactor {
		return fmt.Errorf("%w: got %f", config.ErrSpeedFactorRange, req.SpeedFactor)
	}

	if req.Seed < 0 {
		return fmt.Errorf("%w: got %d", config.ErrSeedNegative, req.Seed)
	}

	return nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.configMu.Lock()
	snapshot := *s.current
	s.configMu.Unlock()

	live := s.live.Snapshot()
	snapshot.Generation = live.Generation
	snapshot.Preprocessing = live.Preprocessing

	writeJSON(w, http.StatusOK, snapshot)
}

// handleSaveConfig is the only configuration mutation path. The submitted
// document replaces the file wholesale. Live fields apply immediately; cold
// fields are persisted but take effect only after a restart, which the
// response flags.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var newCfg config.Config

	err := json.NewDecoder(r.Body).Decode(&newCfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid config body"})

		return
	}

	err = newCfg.Validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})

		return
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	restartNeeded := config.RestartNeeded(&s.startup, &newCfg)

	err = newCfg.Save(s.configPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})

		return
	}

	s.current = &newCfg
	s.live.Update(newCfg.Live())

	s.log.Info("Configuration saved to %s (restart needed: %t)", s.configPath, restartNeeded)
	writeJSON(w, http.StatusOK, saveConfigResponse{Saved: true, RestartNeeded: restartNeeded})
}

// handleRestart asks the main loop to exit with the restart code so the
// supervisor relaunches the process and cold configuration takes effect.
func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	select {
	case s.restartCh <- struct{}{}:
	default:
		// A restart is already pending.
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"restarting": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// Package engine provides the HTTP client for the standalone Chatterbox
// model runtime. The runtime owns the actual model weights and generation;
// this package only speaks its API contract.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/chatterbox-service/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiCapabilities   = "/v1/capabilities"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// readyPollInterval is how often WaitReady re-checks the health endpoint.
// Model loading takes tens of seconds, so a sub-second interval buys nothing.
const readyPollInterval = 500 * time.Millisecond

// Static errors.
var (
	ErrTextEmpty             = errors.New("text cannot be empty")
	ErrReceivedEmptyAudio    = errors.New("received empty audio data")
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// Error message formats.
const (
	errFmtServiceErrorWithCode = "engine error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "engine returned non-OK status: %s, body: %s"
)

// generatePayload is the JSON body for a generation request.
type generatePayload struct {
	Text         string  `json:"text"`
	Language     string  `json:"language"`
	Temperature  float64 `json:"temperature"`
	Exaggeration float64 `json:"exaggeration"`
	CfgWeight    float64 `json:"cfg_weight"`
	Seed         int     `json:"seed"`
	SpeedFactor  float64 `json:"speed_factor"`
}

// errorResponse is the structured error body the engine returns on failure.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client is an HTTP client for the Chatterbox model runtime. It implements
// core.SpeechEngine.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Compile-time interface assertion.
var _ core.SpeechEngine = (*Client)(nil)

// NewClient creates a client for the runtime at baseURL. The timeout applies
// to every HTTP request, including generation, which can take the better
// part of a minute for long texts.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech sends a generation request and returns the raw WAV data.
// The request language must already be resolved against the active model.
func (c *Client) GenerateSpeech(ctx context.Context, req core.GenerationRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	payload := generatePayload{
		Text:         req.Text,
		Language:     req.Language,
		Temperature:  req.Temperature,
		Exaggeration: req.Exaggeration,
		CfgWeight:    req.CfgWeight,
		Seed:         req.Seed,
		SpeedFactor:  req.SpeedFactor,
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to send request to engine at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(
			"%w: expected %s, got %s",
			ErrUnexpectedContentType,
			contentTypeWAV,
			contentType,
		)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return audioData, nil
}

// Capabilities probes what the runtime can serve in its current environment:
// whether the multilingual model is loadable, which devices are functional,
// and whether any model is loaded at all. A runtime reporting no loaded
// model yields core.ErrModelUnavailable, which is fatal at startup.
//
// The caller probes once at startup and caches the result; the runtime does
// not gain or lose capabilities mid-process.
func (c *Client) Capabilities(ctx context.Context) (core.Capabilities, error) {
	var caps core.Capabilities

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+apiCapabilities, http.NoBody,
	)
	if err != nil {
		return caps, fmt.Errorf("failed to create capabilities request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return caps, fmt.Errorf(
			"capabilities probe failed for engine at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return caps, fmt.Errorf("capabilities probe failed with status: %s", resp.Status)
	}

	err = json.NewDecoder(resp.Body).Decode(&caps)
	if err != nil {
		return caps, fmt.Errorf("failed to decode capabilities response: %w", err)
	}

	if !caps.Loaded {
		return caps, core.ErrModelUnavailable
	}

	return caps, nil
}

// HealthCheck verifies that the runtime is up and responding.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"health check failed for engine at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// WaitReady polls the health endpoint until the runtime answers or the
// context expires. The runtime loads its model at startup, which takes 30 to
// 90 seconds on typical hardware, so callers should pass a generous deadline.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		err := c.HealthCheck(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("engine at %s not ready: %w", c.baseURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// parseErrorResponse attempts to decode a structured JSON error from the
// runtime, falling back to the raw body so diagnostics are never lost.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errResp)
	if err == nil {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			resp.Status, errResp.Detail, errResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		errFmtServiceNonOKStatus,
		resp.Status,
		string(body),
	)
}

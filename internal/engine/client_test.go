// Package engine_test tests the HTTP client for the model runtime.
package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
)

const testTimeout = 5 * time.Second

func newTestClient(t *testing.T, handler http.HandlerFunc) *engine.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return engine.NewClient(server.URL, testTimeout)
}

func TestGenerateSpeech_Success(t *testing.T) {
	t.Parallel()

	wantAudio := []byte("RIFFfakewavdata")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/generate/speech", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any

		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello", payload["text"])
		assert.Equal(t, "hi", payload["language"])

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wantAudio)
	})

	audio, err := client.GenerateSpeech(context.Background(), core.GenerationRequest{
		Text:     "hello",
		Language: "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, wantAudio, audio)
}

func TestGenerateSpeech_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request should be sent for empty text")
	})

	_, err := client.GenerateSpeech(context.Background(), core.GenerationRequest{Text: ""})

	require.ErrorIs(t, err, engine.ErrTextEmpty)
}

func TestGenerateSpeech_StructuredError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"text too long","error_code":"TEXT_TOO_LONG"}`))
	})

	_, err := client.GenerateSpeech(context.Background(), core.GenerationRequest{Text: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "text too long")
	assert.Contains(t, err.Error(), "TEXT_TOO_LONG")
}

func TestGenerateSpeech_WrongContentType(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not audio"))
	})

	_, err := client.GenerateSpeech(context.Background(), core.GenerationRequest{Text: "x"})

	require.ErrorIs(t, err, engine.ErrUnexpectedContentType)
}

func TestGenerateSpeech_EmptyAudio(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
	})

	_, err := client.GenerateSpeech(context.Background(), core.GenerationRequest{Text: "x"})

	require.ErrorIs(t, err, engine.ErrReceivedEmptyAudio)
}

func TestCapabilities_Success(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/capabilities", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"multilingual": true,
			"loaded": true,
			"devices": ["cuda", "cpu"],
			"sample_rate": 24000
		}`))
	})

	caps, err := client.Capabilities(context.Background())

	require.NoError(t, err)
	assert.True(t, caps.Multilingual)
	assert.True(t, caps.Loaded)
	assert.Equal(t, []string{"cuda", "cpu"}, caps.Devices)
	assert.Equal(t, 24000, caps.SampleRate)
}

func TestCapabilities_NoModelLoadedIsFatal(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"multilingual": false, "loaded": false, "devices": ["cpu"]}`))
	})

	_, err := client.Capabilities(context.Background())

	require.ErrorIs(t, err, core.ErrModelUnavailable)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, healthy.HealthCheck(context.Background()))

	unhealthy := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	require.Error(t, unhealthy.HealthCheck(context.Background()))
}

func TestWaitReady_EventuallyHealthy(t *testing.T) {
	t.Parallel()

	var calls int

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, client.WaitReady(ctx))
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitReady_Timeout(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.WaitReady(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Package server_test tests the HTTP API handlers.
package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/resolver"
	"github.com/book-expert/chatterbox-service/internal/server"
)

// mockEngine is a mock implementation of core.SpeechEngine.
type mockEngine struct {
	lastRequest core.GenerationRequest
	audio       []byte
	healthy     bool
}

func (m *mockEngine) GenerateSpeech(_ context.Context, req core.GenerationRequest) ([]byte, error) {
	m.lastRequest = req

	return m.audio, nil
}

func (m *mockEngine) Capabilities(_ context.Context) (core.Capabilities, error) {
	return core.Capabilities{Multilingual: true, Loaded: true, Devices: []string{"cpu"}, SampleRate: 24000}, nil
}

func (m *mockEngine) HealthCheck(_ context.Context) error {
	if !m.healthy {
		return core.ErrModelUnavailable
	}

	return nil
}

// testWAV builds a minimal valid PCM WAV byte stream.
func testWAV(sampleRate, channels, bits, dataBytes int) []byte {
	var buf bytes.Buffer

	data := make([]byte, dataBytes)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataBytes))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataBytes))
	buf.Write(data)

	return buf.Bytes()
}

type testFixture struct {
	server     *server.Server
	engine     *mockEngine
	configPath string
}

func newFixture(t *testing.T, kind core.ModelKind) *testFixture {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.EnableCORS = false

	eng := &mockEngine{
		audio:   testWAV(24000, 1, 16, 48000),
		healthy: true,
	}

	selection := resolver.Selection{Kind: kind, Warnings: nil}
	if kind == core.KindEnglishOnly && cfg.Model.UseMultilingual {
		selection = resolver.ResolveStartupModel(true, false)
	}

	configPath := filepath.Join(t.TempDir(), "config.toml")

	srv := server.New(server.Options{
		Config:       &cfg,
		ConfigPath:   configPath,
		Engine:       eng,
		Selection:    selection,
		Capabilities: core.Capabilities{Multilingual: kind == core.KindMultilingual, Loaded: true},
		ActiveDevice: "cpu",
		Live:         config.NewLiveState(cfg.Live()),
		Log:          testLogger,
	})

	return &testFixture{server: srv, engine: eng, configPath: configPath}
}

func (f *testFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer

	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	recorder := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(recorder, req)

	return recorder
}

func TestStatus(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status struct {
		ActiveModelKind    string   `json:"active_model_kind"`
		ActiveDevice       string   `json:"active_device"`
		SupportedLanguages []string `json:"supported_languages"`
		Loaded             bool     `json:"loaded"`
		DefaultLanguage    string   `json:"default_language"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "multilingual", status.ActiveModelKind)
	assert.Equal(t, "cpu", status.ActiveDevice)
	assert.Len(t, status.SupportedLanguages, 23)
	assert.True(t, status.Loaded)
	assert.Equal(t, "en", status.DefaultLanguage)
}

func TestStatus_ReportsStartupFallbackWarning(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindEnglishOnly)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status struct {
		ActiveModelKind string         `json:"active_model_kind"`
		StartupWarnings []core.Warning `json:"startup_warnings"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "english_only", status.ActiveModelKind)
	require.Len(t, status.StartupWarnings, 1)
	assert.Equal(t, core.WarnMultilingualUnavailable, status.StartupWarnings[0].Code)
}

func TestGenerate_MultilingualHonorsLanguage(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts",
		map[string]any{"text": "namaste", "language": "hi"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/wav", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "hi", recorder.Header().Get("X-Effective-Language"))
	assert.Empty(t, recorder.Header().Get("X-Language-Warning"))
	assert.Equal(t, "hi", fixture.engine.lastRequest.Language)
}

func TestGenerate_EnglishOnlyDowngrades(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindEnglishOnly)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts",
		map[string]any{"text": "namaste", "language": "hi"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "en", recorder.Header().Get("X-Effective-Language"))
	assert.Equal(t, string(core.WarnLanguageDowngraded), recorder.Header().Get("X-Language-Warning"))
	assert.Equal(t, "en", fixture.engine.lastRequest.Language)
}

func TestGenerate_ReportsAudioMetadata(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts",
		map[string]any{"text": "hello"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "24000", recorder.Header().Get("X-Sample-Rate"))
	assert.Equal(t, "1s", recorder.Header().Get("X-Audio-Duration"))
}

func TestGenerate_UnknownLanguageRejectedBeforeResolution(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts",
		map[string]any{"text": "hello", "language": "xx"})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, fixture.engine.lastRequest.Text, "resolver and engine must not be reached")
}

func TestGenerate_MissingTextRejected(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts", map[string]any{"language": "en"})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGenerate_OutOfRangeParameterRejected(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/tts",
		map[string]any{"text": "hello", "temperature": 9.0})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSaveConfig_LiveChangeAppliesWithoutRestart(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	newCfg := config.Default()
	newCfg.Server.EnableCORS = false
	newCfg.Generation.Language = "fr"

	recorder := fixture.do(t, http.MethodPost, "/api/v1/config", newCfg)
	require.Equal(t, http.StatusOK, recorder.Code)

	var saved struct {
		Saved         bool `json:"saved"`
		RestartNeeded bool `json:"restart_needed"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &saved))
	assert.True(t, saved.Saved)
	assert.False(t, saved.RestartNeeded)

	// The new default language is live immediately.
	statusRec := fixture.do(t, http.MethodGet, "/api/v1/status", nil)

	var status struct {
		DefaultLanguage string `json:"default_language"`
	}

	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, "fr", status.DefaultLanguage)

	// The file was rewritten wholesale.
	reloaded, err := config.LoadFile(fixture.configPath)
	require.NoError(t, err)
	assert.Equal(t, "fr", reloaded.Generation.Language)
}

func TestSaveConfig_ColdChangeFlagsRestart(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	newCfg := config.Default()
	newCfg.Server.EnableCORS = false
	newCfg.Model.UseMultilingual = false

	recorder := fixture.do(t, http.MethodPost, "/api/v1/config", newCfg)
	require.Equal(t, http.StatusOK, recorder.Code)

	var saved struct {
		RestartNeeded bool `json:"restart_needed"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &saved))
	assert.True(t, saved.RestartNeeded)
}

func TestSaveConfig_RestartStaysPendingAcrossSaves(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	coldChange := config.Default()
	coldChange.Server.EnableCORS = false
	coldChange.Model.UseMultilingual = false

	var saved struct {
		RestartNeeded bool `json:"restart_needed"`
	}

	// The process still runs with its startup model selection, so every
	// save carrying the cold change must keep flagging the restart, even
	// when the document is identical to the previous save.
	for i := 0; i < 2; i++ {
		recorder := fixture.do(t, http.MethodPost, "/api/v1/config", coldChange)
		require.Equal(t, http.StatusOK, recorder.Code)

		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &saved))
		assert.True(t, saved.RestartNeeded, "save %d must still require a restart", i+1)
	}

	// Reverting to the startup cold configuration clears the flag.
	revert := config.Default()
	revert.Server.EnableCORS = false

	recorder := fixture.do(t, http.MethodPost, "/api/v1/config", revert)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &saved))
	assert.False(t, saved.RestartNeeded)
}

func TestSaveConfig_InvalidRejected(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	newCfg := config.Default()
	newCfg.Generation.Language = "xx"

	recorder := fixture.do(t, http.MethodPost, "/api/v1/config", newCfg)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRestart(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/restart", nil)
	require.Equal(t, http.StatusAccepted, recorder.Code)

	select {
	case <-fixture.server.RestartRequests():
	default:
		t.Fatal("expected a pending restart request")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, core.KindMultilingual)

	recorder := fixture.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	fixture.engine.healthy = false

	recorder = fixture.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

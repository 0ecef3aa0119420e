// Package server exposes the operator and UI facing HTTP API: status,
// generation, configuration save, and the restart trigger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/resolver"
	"github.com/book-expert/chatterbox-service/internal/text"
)

const (
	readHeaderTimeout = 10 * time.Second
	healthTimeout     = 10 * time.Second
)

// Server is the HTTP API for the speech service. The model selection and
// capabilities are fixed at construction; only live configuration fields
// change during the process lifetime, through the explicit save handler.
type Server struct {
	log          *logger.Logger
	engine       core.SpeechEngine
	selection    resolver.Selection
	caps         core.Capabilities
	activeDevice string
	live         *config.LiveState
	preprocessor *text.Preprocessor

	// configMu guards the persisted configuration document and its path.
	configMu   sync.Mutex
	current    *config.Config
	configPath string

	// startup is the configuration this process booted with. Restart-needed
	// is judged against it, not against the last save: a pending cold change
	// stays pending until the process actually restarts.
	startup config.Config

	restartCh  chan struct{}
	httpServer *http.Server
}

// Options bundles the construction parameters for the API server.
type Options struct {
	Config       *config.Config
	ConfigPath   string
	Engine       core.SpeechEngine
	Selection    resolver.Selection
	Capabilities core.Capabilities
	ActiveDevice string
	Live         *config.LiveState
	Log          *logger.Logger
}

// New creates the API server and its route table.
func New(opts Options) *Server {
	srv := &Server{
		log:          opts.Log,
		engine:       opts.Engine,
		selection:    opts.Selection,
		caps:         opts.Capabilities,
		activeDevice: opts.ActiveDevice,
		live:         opts.Live,
		preprocessor: text.NewPreprocessor(),
		current:      opts.Config,
		configPath:   opts.ConfigPath,
		startup:      *opts.Config,
		restartCh:    make(chan struct{}, 1),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/tts", srv.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/config", srv.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", srv.handleSaveConfig).Methods(http.MethodPost)
	api.HandleFunc("/restart", srv.handleRestart).Methods(http.MethodPost)

	var handler http.Handler = router
	if opts.Config.Server.EnableCORS {
		// The browser UI is served from a separate origin.
		handler = cors.AllowAll().Handler(router)
	}

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler returns the root HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

// RestartRequests signals when an operator asked for a process restart. The
// main loop exits with the restart exit code so the supervisor relaunches
// with the new cold configuration.
func (s *Server) RestartRequests() <-chan struct{} {
	return s.restartCh
}

package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

/*
Server answers the co-signer's approval callbacks.

Request flow:
  POST /v2/tx_sign_request
    - Body is a compact RS256 JWT signed by the co-signer
    - Verified with the configured co-signer key (PEM or JWKS)
    - Payload decoded to TxSignRequest and handed to the plugin Manager
    - Response body is a JWT signed with the callback private key:
      { action, requestId, rejectionReason? }

  POST /v2/config_change_sign_request
    - Authenticated the same way
    - Always answered with IGNORE

Status codes:
  - 401 expired token
  - 403 any other authentication failure
  - 500 plugin failure or response signing failure
*/

const (
	PathTxSignRequest           = "/v2/tx_sign_request"
	PathConfigChangeSignRequest = "/v2/config_change_sign_request"

	// co-signer payloads are small; anything bigger is not a token
	maxBodyBytes = 1 << 20
)

// ServerConfig holds the configuration for the callback server
type ServerConfig struct {
	Port          int
	Authenticator *Authenticator
	Manager       *Manager
	Logger        *zap.Logger
}

// Server handles HTTP requests from the co-signer
type Server struct {
	authenticator *Authenticator
	manager       *Manager
	logger        *zap.Logger
	httpServer    *http.Server
	listener      net.Listener
	errCh         chan error
}

// NewServer creates a new server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	manager := cfg.Manager
	if manager == nil {
		manager = NewManager(cfg.Logger)
	}

	s := &Server{
		authenticator: cfg.Authenticator,
		manager:       manager,
		logger:        cfg.Logger,
		errCh:         make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(PathTxSignRequest, s.handleTxSignRequest)
	mux.HandleFunc(PathConfigChangeSignRequest, s.handleConfigChangeSignRequest)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start binds the listening port and serves in the background. A bind
// failure, such as the port being taken, is returned here; a later serve
// failure is delivered on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Sugar().Infow("Starting callback server", "addr", ln.Addr().String(), "plugins", s.manager.Plugins())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("Callback server error", "error", err)
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Errors yields at most one serve failure and is closed once the server
// stops serving.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Addr is the bound address once Start has succeeded
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

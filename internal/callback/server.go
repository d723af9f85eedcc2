// Package callback receives disclosure responses posted back by wallets.
package callback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/capiscio/didjwt/pkg/credentials"
	"github.com/capiscio/didjwt/pkg/jwt"
)

const shutdownTimeout = 5 * time.Second

// Verifier turns a disclosure response token into a profile.
type Verifier interface {
	VerifyDisclosure(ctx context.Context, token string) (*credentials.Profile, error)
}

// Request is the body wallets post to /callback.
type Request struct {
	AccessToken string `json:"access_token"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// OnProfile registers a function called with every verified profile.
func OnProfile(fn func(*credentials.Profile)) Option {
	return func(s *Server) {
		s.onProfile = fn
	}
}

// Server is the callback HTTP endpoint.
type Server struct {
	echo      *echo.Echo
	verifier  Verifier
	logger    zerolog.Logger
	onProfile func(*credentials.Profile)
}

// NewServer creates a Server verifying responses with verifier.
func NewServer(verifier Verifier, opts ...Option) *Server {
	s := &Server{
		echo:     echo.New(),
		verifier: verifier,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(otelecho.Middleware("didjwt-callback"))
	s.RegisterRoutes(s.echo)
	return s
}

// RegisterRoutes mounts the handlers on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.POST("/callback", s.handleCallback)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("callback server listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down callback server")
	return s.echo.Shutdown(shutdownCtx)
}

// extractToken reads the response token from the Authorization header or,
// failing that, from the JSON body.
func extractToken(c echo.Context) (string, error) {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), nil
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return "", errors.New("body must be JSON")
	}
	if req.AccessToken == "" {
		return "", errors.New("access_token is required")
	}
	return req.AccessToken, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) handleCallback(c echo.Context) error {
	token, err := extractToken(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
	}

	profile, err := s.verifier.VerifyDisclosure(c.Request().Context(), token)
	if err != nil {
		if jwtErr, ok := jwt.AsError(err); ok {
			s.logger.Warn().Str("code", jwtErr.Code).Err(err).Msg("rejected disclosure response")
			return c.JSON(http.StatusUnauthorized, errorResponse{Code: jwtErr.Code, Message: jwtErr.Message})
		}
		s.logger.Error().Err(err).Msg("failed to verify disclosure response")
		return c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "verification failed"})
	}

	s.logger.Info().Str("did", profile.DID).Msg("accepted disclosure response")
	if s.onProfile != nil {
		s.onProfile(profile)
	}
	return c.JSON(http.StatusOK, profile)
}

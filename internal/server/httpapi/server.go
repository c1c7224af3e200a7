// Package httpapi exposes the authentication service over HTTP. It owns
// routing, the auth middleware, cookie transport of refresh tokens, and the
// mapping of service errors to status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

const (
	// RefreshTokenCookieName carries the opaque refresh token between the
	// browser and /api/auth; it is never accepted anywhere else.
	RefreshTokenCookieName = "refreshToken"

	// AccessTokenCookieName is the cookie fallback for clients that cannot
	// set an Authorization header.
	AccessTokenCookieName = "access_token"

	refreshCookiePath = "/api/auth"

	shutdownTimeout = 5 * time.Second
)

type HTTPServer struct {
	address              string
	logger               logging.Logger
	users                *services.UserService
	jwtSecret            []byte
	refreshTokenValidity time.Duration
	secureCookies        bool
}

func NewHTTPServer(l logging.Logger, us *services.UserService, cfg *config.Config) *HTTPServer {
	return &HTTPServer{
		address:              cfg.EndpointAddrHTTP,
		logger:               l.With("module", "http_server"),
		users:                us,
		jwtSecret:            []byte(cfg.SecretKey),
		refreshTokenValidity: cfg.RefreshTokenValidityDuration,
		secureCookies:        true,
	}
}

// Router assembles the gin engine with all routes and middleware attached.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/healthcheck", s.healthcheck)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", s.register)
		authGroup.POST("/login", s.login)
		authGroup.POST("/refresh", s.refresh)
		authGroup.POST("/logout", s.Authenticate(), s.logout)
		authGroup.GET("/me", s.Authenticate(), s.me)
	}

	adminGroup := r.Group("/api/admin", s.Authenticate(), s.RequireRole(models.RoleAdmin))
	{
		adminGroup.GET("/overview", s.adminOverview)
	}

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

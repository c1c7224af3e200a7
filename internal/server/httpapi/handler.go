package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Bio       string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// statusForError is the explicit error-kind → HTTP status table. Handlers
// never inspect error text.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrMissingRefreshToken),
		errors.Is(err, common.ErrInvalidRefreshToken),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrAccountInvalid),
		errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrAccountSuspended),
		errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error as a JSON message with the mapped status. Storage and
// internal errors are replaced by a generic message; the detail was already
// logged inside the service.
func fail(c *gin.Context, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "an unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

func (s *HTTPServer) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Server is up and running!"})
}

func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.ErrValidation)
		return
	}

	view, err := s.users.Register(c.Request.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.Role(req.Role),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully!",
		"user":    view,
	})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.ErrInvalidCredentials)
		return
	}

	res, err := s.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	s.setRefreshCookie(c, res.RefreshToken, int(s.refreshTokenValidity.Seconds()))

	// the refresh token travels only in the cookie; the body carries the
	// short-lived access token and the public user view
	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful!",
		"accessToken": res.AccessToken,
		"user":        res.User,
	})
}

func (s *HTTPServer) refresh(c *gin.Context) {
	token, err := c.Cookie(RefreshTokenCookieName)
	if err != nil {
		fail(c, common.ErrMissingRefreshToken)
		return
	}

	accessToken, err := s.users.Refresh(c.Request.Context(), token)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Access token refreshed successfully.",
		"accessToken": accessToken,
	})
}

func (s *HTTPServer) logout(c *gin.Context) {
	userID := c.GetString(ctxUserIDKey)

	if err := s.users.Logout(c.Request.Context(), userID); err != nil {
		fail(c, err)
		return
	}

	s.setRefreshCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

func (s *HTTPServer) me(c *gin.Context) {
	user, err := s.users.Me(c.Request.Context(), c.GetString(ctxUserIDKey))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *HTTPServer) adminOverview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *HTTPServer) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshTokenCookieName, value, maxAge, refreshCookiePath, "", s.secureCookies, true)
}

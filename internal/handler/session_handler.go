package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
	"github.com/prperemyshlev/shop-session/internal/service"
)

// SessionHandler handles session requests
type SessionHandler struct {
	authService service.AuthService
	session     SessionReader
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(authService service.AuthService, session SessionReader) *SessionHandler {
	return &SessionHandler{
		authService: authService,
		session:     session,
	}
}

// Get returns the current session
// @Summary Current session
// @Tags session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Router /api/v1/session [get]
func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSessionResponse(h.session.State()))
}

// Login handles sign-in
// @Summary Sign in
// @Description Authenticate with phone number and password against the shop API
// @Tags session
// @Accept json
// @Produce json
// @Param request body dto.SignInRequest true "Sign-in request"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/session/login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if _, err := h.authService.SignIn(c.Request.Context(), &req); err != nil {
		status, label := signInFailure(err)
		c.JSON(status, dto.ErrorResponse{
			Error:   label,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(h.session.State()))
}

// Logout handles sign-out
// @Summary Sign out
// @Tags session
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Router /api/v1/session/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.authService.SignOut(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to sign out",
		})
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Successfully signed out",
	})
}

func signInFailure(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrValidationFailure):
		return http.StatusBadRequest, "Bad request"
	case errors.Is(err, domain.ErrTransientFailure):
		return http.StatusBadGateway, "Bad gateway"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

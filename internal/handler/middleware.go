package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
)

// retryAfterSeconds is advertised while the session decision is pending.
const retryAfterSeconds = "1"

// SessionReader exposes the current session state
type SessionReader interface {
	State() domain.SessionState
}

// SessionGate only lets requests through for an authenticated session. An
// uninitialized session is not treated as logged out: the caller is asked to
// retry once the decision is made.
func SessionGate(session SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := session.State()

		switch {
		case !state.IsInitialized():
			c.Header("Retry-After", retryAfterSeconds)
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "Service unavailable",
				Message: "Session is initializing",
			})
			c.Abort()
			return
		case !state.IsAuthenticated():
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Not signed in",
				Details: gin.H{"reason": string(state.Reason)},
			})
			c.Abort()
			return
		}

		c.Set("shop_id", state.Profile.ShopID)
		c.Set("user_id", state.Profile.UserID)

		c.Next()
	}
}

package http

import (
	"net/http"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain"

	"github.com/gin-gonic/gin"
)

const claimsContextKey = "claims"

// requirePermission verifies the bearer token before the route handler runs.
// On failure the chain is aborted and the handler never executes.
func (s *Server) requirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthMode == config.AuthModeNone {
			c.Next()
			return
		}
		if s.authInitErr != nil || s.verifier == nil {
			writeErrorStatus(c, http.StatusInternalServerError)
			c.Abort()
			return
		}
		claims, err := s.verifier.Verify(c.Request.Context(), c.GetHeader("Authorization"), permission)
		if err != nil {
			s.rejectAuth(c, permission, err)
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func (s *Server) rejectAuth(c *gin.Context, permission string, err error) {
	authErr, ok := domain.AsAuthError(err)
	if !ok {
		s.logger.ErrorContext(c.Request.Context(), "verifier returned untyped error", "request_id", getRequestID(c), "error", err)
		writeErrorStatus(c, http.StatusInternalServerError)
		c.Abort()
		return
	}
	status := authErr.Status
	if authErr.Kind == domain.AuthPermissionNotFound && s.cfg.ForbiddenOnMissingPermission {
		status = http.StatusForbidden
	}
	s.metrics.authFailures.WithLabelValues(string(authErr.Kind)).Inc()
	attrs := []any{
		"request_id", getRequestID(c),
		"kind", authErr.Kind,
		"code", authErr.Code,
		"permission", permission,
	}
	if authErr.Kind == domain.AuthKeySetUnavailable {
		s.logger.ErrorContext(c.Request.Context(), "authorization unavailable", append(attrs, "error", authErr.Err)...)
	} else {
		s.logger.WarnContext(c.Request.Context(), "authorization failed", attrs...)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Success: false,
		Error:   status,
		Message: authErr.Code,
	})
}

func getClaims(c *gin.Context) (domain.Claims, bool) {
	raw, ok := c.Get(claimsContextKey)
	if !ok {
		return domain.Claims{}, false
	}
	claims, ok := raw.(domain.Claims)
	return claims, ok
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/pkg/jwt"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey holds the authenticated user id as a string
	UserIDKey = "user_id"
	// AuthUserKey holds the *models.AuthUser
	AuthUserKey = "auth_user"
)

// UserFinder resolves the user behind a token
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware resolves the caller from the Authorization header, or from
// the session when no header is sent. Requests without valid credentials
// continue anonymously; use RequireScope to protect a route.
func AuthMiddleware(tokens *jwt.JWTUtil, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""

		if header := c.GetHeader("Authorization"); header != "" {
			// both "Bearer <token>" and a bare token are accepted
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				slog.Debug("ignoring invalid authorization token", "error", err)
			} else {
				userID = claims.UserID
			}
		} else if sess := CurrentSession(c); sess != nil {
			userID = sess.GetString(UserIDKey)
		}

		if userID == "" {
			c.Next()
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				slog.Warn("user lookup failed", "user_id", userID, "error", err)
			}
			c.Next()
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(AuthUserKey, &models.AuthUser{ID: userID, Scopes: user.Scopes()})
		c.Next()
	}
}

// RequireScope aborts with 401 for anonymous callers and 403 for callers
// lacking scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
			c.Abort()
			return
		}
		if !user.HasScope(scope) {
			utils.ErrorResponse(c, http.StatusForbidden, "Insufficient permissions", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated caller, if any
func CurrentUser(c *gin.Context) (*models.AuthUser, bool) {
	v, ok := c.Get(AuthUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.AuthUser)
	return user, ok && user != nil
}

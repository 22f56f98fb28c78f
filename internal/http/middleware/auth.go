package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/eosdis/harmony-workflow/internal/http/response"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

const (
	ContextUsername    = "username"
	ContextIsAdmin     = "isAdmin"
	ContextAccessToken = "accessToken"
)

// UserResolver validates a raw bearer token against the identity provider
// and returns the username it belongs to.
type UserResolver interface {
	Username(ctx context.Context, accessToken string) (string, error)
}

type AuthMiddleware struct {
	log       *logger.Logger
	jwtSecret []byte
	// adminGroup members act with admin privileges.
	adminGroup string
	resolver   UserResolver
}

func NewAuthMiddleware(baseLog *logger.Logger, jwtSecret, adminGroup string, resolver UserResolver) *AuthMiddleware {
	return &AuthMiddleware{
		log:        baseLog.With("Middleware", "AuthMiddleware"),
		jwtSecret:  []byte(jwtSecret),
		adminGroup: adminGroup,
		resolver:   resolver,
	}
}

type sessionClaims struct {
	Username    string   `json:"username"`
	Groups      []string `json:"groups,omitempty"`
	AccessToken string   `json:"accessToken,omitempty"`
	jwt.RegisteredClaims
}

// RequireUser authenticates the session token and attaches the caller's
// identity to the request context.
func (am *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody{
				Code:        apierr.CodeValidation,
				Description: "Error: You must be logged in to access this resource",
			})
			return
		}

		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.Username == "" {
			// Not one of our session tokens; try it as a raw identity
			// provider bearer token.
			if am.resolver != nil {
				username, rerr := am.resolver.Username(c.Request.Context(), tokenString)
				if rerr == nil && username != "" {
					c.Set(ContextUsername, username)
					c.Set(ContextIsAdmin, false)
					c.Set(ContextAccessToken, tokenString)
					c.Next()
					return
				}
				am.log.Debug("Bearer token resolution failed", "error", rerr)
			}
			am.log.Debug("Rejected session token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody{
				Code:        apierr.CodeValidation,
				Description: "Error: Invalid or expired session",
			})
			return
		}

		isAdmin := false
		for _, g := range claims.Groups {
			if g == am.adminGroup && am.adminGroup != "" {
				isAdmin = true
				break
			}
		}
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextIsAdmin, isAdmin)
		c.Set(ContextAccessToken, claims.AccessToken)
		c.Next()
	}
}

// RequireAdmin must run after RequireUser.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorBody{
				Code:        apierr.CodeValidation,
				Description: "Error: You are not permitted to access this resource",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Cookie("session"); err == nil {
		return cookie
	}
	return ""
}

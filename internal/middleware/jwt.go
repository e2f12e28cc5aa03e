package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
	"github.com/noah-isme/room-scheduler-api/pkg/response"
)

// ContextActorKey is the gin context key storing the caller's token claims.
const ContextActorKey = "currentActor"

type tokenValidator interface {
	ValidateToken(token string) (*models.ActorClaims, error)
}

// Actor attaches the bearer token's claims when the header carries a valid token.
// Missing or invalid tokens leave the request anonymous.
func Actor(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.Next()
			return
		}
		c.Set(ContextActorKey, claims)
		c.Next()
	}
}

// RequireActor rejects requests that Actor did not authenticate.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFromContext(c) == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "a valid bearer token is required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the authenticated claims, or nil for anonymous requests.
func ActorFromContext(c *gin.Context) *models.ActorClaims {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.ActorClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

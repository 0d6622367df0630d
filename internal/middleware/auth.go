package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/pkg/auth"
)

const (
	UserKey  = "user"
	TokenKey = "token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware checks the bearer token and stores the user in the context.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		user, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserKey, user)
		c.Set(TokenKey, token)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *models.User {
	return c.MustGet(UserKey).(*models.User)
}

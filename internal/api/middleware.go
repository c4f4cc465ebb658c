package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/auth"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// AuthMiddleware validates the JWT token from the Authorization header.
// WebSocket clients cannot set headers, so a "token" query parameter is
// accepted as well.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header format must be Bearer {token}"})
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization header required"})
			return
		}

		claims, err := auth.ValidateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
			return
		}

		// Store username in context for handlers to use
		c.Set("username", claims.Username)
		c.Next()
	}
}

// CORSMiddleware lets the designer UI, served from another origin, call the API.
func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowWebSockets:  true,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	origins := allowedOrigins()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// allowedOrigins returns the configured origins, or nil for any origin.
func allowedOrigins() []string {
	raw := strings.TrimSpace(config.AppConfig.CORSAllowedOrigins)
	if raw == "" || raw == "*" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

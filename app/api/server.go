package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// RSS re-export endpoint
	r.GET("/feeds/:id", handler.GetFeedByID)

	// Health and discovery preview endpoints
	r.GET("/health", handler.HealthCheck)
	r.GET("/discover", handler.DiscoverPreview)

	// API endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/channels", handler.Subscribe)
			api.GET("/channels", handler.ListChannels)
			api.GET("/channels/:id/items", handler.GetChannelItems)
			api.POST("/channels/:id/refresh", handler.RefreshChannel)
			api.POST("/refresh", handler.RefreshAll)
			api.PATCH("/items/:id", handler.UpdateItemState)
			api.GET("/failures", handler.ListFailures)
		}
		log.Printf("API endpoints enabled with authentication")
	} else {
		log.Printf("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":     "/feeds/<id>",
			"health":   "/health",
			"discover": "/discover?url=<url>",
		}

		// Add API endpoints if authentication is enabled
		if apiAccessKey != "" {
			endpoints["subscribe"] = "/api/channels (POST, requires X-API-Key header)"
			endpoints["channels"] = "/api/channels?user_id=<id> (requires X-API-Key header)"
			endpoints["items"] = "/api/channels/<id>/items (requires X-API-Key header)"
			endpoints["refresh"] = "/api/channels/<id>/refresh (POST, requires X-API-Key header)"
			endpoints["refresh_all"] = "/api/refresh (POST, requires X-API-Key header)"
			endpoints["item_state"] = "/api/items/<id> (PATCH, requires X-API-Key header)"
			endpoints["failures"] = "/api/failures (requires X-API-Key header)"
		}

		c.JSON(200, gin.H{
			"service":     "Feedloom",
			"description": "RSS/Atom feed reader core with discovery, normalization and refresh",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from X-API-Key header
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

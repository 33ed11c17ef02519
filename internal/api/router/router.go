package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/rhythm/internal/api/handler"
)

// SetupRouter configures the read-only progress API and returns it wrapped
// in the CORS handler.
func SetupRouter(deps *handler.Dependencies) http.Handler {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	progressHandler := handler.NewProgressHandler(deps)

	r.GET("/health", progressHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		progress := v1.Group("/progress")
		{
			// GET /api/v1/progress - All worker states
			progress.GET("", progressHandler.ListProgress)

			// GET /api/v1/progress/stream - Live progress events over websocket
			progress.GET("/stream", progressHandler.Stream)

			// GET /api/v1/progress/:worker_id - One worker's state
			progress.GET("/:worker_id", progressHandler.GetWorker)
		}

		// GET /api/v1/queue - Batch queue counters
		v1.GET("/queue", progressHandler.GetQueue)
	}

	return CORSMiddleware(deps.AllowedOrigins).Handler(r)
}

package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "jigsaw-api-service"
	}

	r.GET("/health", healthHandler(serviceName, deps.HealthChecks))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)

			// Source image upload, then decomposition
			jobs.POST("/:job_id/upload", jobHandler.IssueUploadURL)
			jobs.POST("/:job_id/process", jobHandler.ProcessJob)

			jobs.GET("/:job_id/pieces", jobHandler.ListPieces)
		}
	}

	return r
}

// healthHandler reports healthy only when every dependency check passes
func healthHandler(serviceName string, checks map[string]func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		health := "healthy"
		if status != http.StatusOK {
			health = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":       health,
			"service":      serviceName,
			"dependencies": results,
		})
	}
}

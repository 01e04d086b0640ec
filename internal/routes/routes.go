package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/scholarai/citecheck/internal/controllers"
	"github.com/scholarai/citecheck/internal/middleware"
)

// SetupRoutes registers the citation-check API.
func SetupRoutes(r *gin.Engine, checkController *controllers.CheckController, jwtSecret string) {
	api := r.Group("/api/v1/citations")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("", checkController.StartCheck)
			jobs.GET("/:jobId", checkController.GetJob)
			jobs.POST("/:jobId/cancel", checkController.CancelJob)
		}

		api.GET("/documents/:documentId", checkController.GetLatestForDocument)
		api.GET("/projects/:projectId", checkController.ListForProject)
		api.PUT("/issues/:issueId", checkController.UpdateIssue)

		api.GET("/health", checkController.Health)
	}
}

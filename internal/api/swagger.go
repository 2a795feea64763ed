package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"guardiq-worker-go/docs"
)

func (s *Server) setupSwagger() {
	docs.SwaggerInfo.Version = s.config.Version
	docs.SwaggerInfo.Host = ""

	s.router.GET("/api/info", func(c *gin.Context) {
		endpoints := gin.H{
			"health":      "/health",
			"worker_info": "/",
			"status":      "/status",
			"tracks":      "/tracks",
			"system":      "/system/stats",
		}
		if s.alertsHandler != nil {
			endpoints["alerts"] = "/alerts"
		}
		if s.streamHandler != nil {
			endpoints["stream"] = "/stream"
			endpoints["snapshot"] = "/snapshot"
		}

		c.JSON(http.StatusOK, gin.H{
			"title":       docs.SwaggerInfo.Title,
			"version":     s.config.Version,
			"description": docs.SwaggerInfo.Description,
			"swagger_ui":  "/docs/index.html",
			"endpoints":   endpoints,
			"worker_id":   s.config.WorkerID,
			"port":        s.config.Port,
		})
	})

	s.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
}

package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/corefin/metrichub/internal/handlers"
)

type RouterConfig struct {
	MetricHandler    *handlers.MetricHandler
	CaliberHandler   *handlers.CaliberHandler
	BindingHandler   *handlers.BindingHandler
	DimensionHandler *handlers.DimensionHandler
	TaskHandler      *handlers.TaskHandler
	ValueHandler     *handlers.ValueHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("metrichub"))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Metrics and versions
		api.GET("/metrics", cfg.MetricHandler.List)
		api.POST("/metrics", cfg.MetricHandler.Create)
		api.GET("/metrics/:id", cfg.MetricHandler.Get)
		api.PATCH("/metrics/:id", cfg.MetricHandler.Update)
		api.DELETE("/metrics/:id", cfg.MetricHandler.Delete)
		api.POST("/metrics/:id/publish", cfg.MetricHandler.RequestPublish)
		api.GET("/metrics/:id/versions", cfg.MetricHandler.ListVersions)
		api.POST("/metrics/:id/versions", cfg.MetricHandler.CreateVersion)
		api.PATCH("/versions/:id", cfg.MetricHandler.UpdateVersion)

		// Version caliber bindings
		api.GET("/versions/:id/bindings", cfg.BindingHandler.ListByVersion)
		api.POST("/versions/:id/bindings", cfg.BindingHandler.Create)
		api.PATCH("/bindings/:id", cfg.BindingHandler.Update)
		api.DELETE("/bindings/:id", cfg.BindingHandler.Delete)

		// Stored values
		api.GET("/bindings/:id/values", cfg.ValueHandler.ListByBinding)
		api.POST("/sources/values", cfg.ValueHandler.IngestSources)

		// Calibers
		api.GET("/calibers", cfg.CaliberHandler.List)
		api.POST("/calibers", cfg.CaliberHandler.Create)
		api.GET("/calibers/:id", cfg.CaliberHandler.Get)
		api.PATCH("/calibers/:id", cfg.CaliberHandler.Update)
		api.DELETE("/calibers/:id", cfg.CaliberHandler.Delete)

		// Dimensions
		api.GET("/dimensions/companies", cfg.DimensionHandler.ListCompanies)
		api.GET("/dimensions/products", cfg.DimensionHandler.ListProducts)
		api.GET("/dimensions/channels", cfg.DimensionHandler.ListChannels)
		api.POST("/dimensions/combos", cfg.DimensionHandler.EnsureCombo)
		api.GET("/dimensions/combos/:id", cfg.DimensionHandler.GetCombo)

		// Compute tasks
		api.POST("/tasks", cfg.TaskHandler.Enqueue)
		api.GET("/tasks", cfg.TaskHandler.List)
		api.GET("/tasks/:id", cfg.TaskHandler.Get)
		api.POST("/tasks/:id/cancel", cfg.TaskHandler.Cancel)

		// Dashboard
		api.GET("/dashboard/summary", cfg.MetricHandler.Summary)
	}

	return router
}

func corsOrigins() []string {
	raw := strings.TrimSpace(os.Getenv("CORS_ORIGINS"))
	if raw == "" {
		return []string{"http://localhost:3000", "http://localhost:5174"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

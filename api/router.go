package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/use-agent/browserkit/api/handler"
	"github.com/use-agent/browserkit/api/middleware"
	"github.com/use-agent/browserkit/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(sess *handler.Session, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	// Row values are exported as sent; float64 would reformat large numbers.
	binding.EnableDecoderUseNumber = true

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sess, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/navigate", handler.Navigate(sess))
	protected.POST("/navigate/href", handler.NavigateByHref(sess))
	protected.POST("/wait", handler.Wait(sess))
	protected.POST("/export/csv", handler.ExportCSV(sess, cfg.Export.Dir))
	protected.POST("/export/xlsx", handler.ExportXLSX(cfg.Export.Dir))

	return r
}

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/pipeline"
)

type RouterConfig struct {
	Pipeline *pipeline.Pipeline
	// Workflows is nil when Temporal is unreachable; workflow routes then answer 503.
	Workflows WorkflowClient
	TaskQueue string
	// APIToken guards mutating routes. Empty disables auth.
	APIToken string
	Log      *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.MaxMultipartMemory = 8 << 20 // 8MB

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	h := NewHandler(cfg.Pipeline, log)
	up := NewUploadHandler(cfg.Pipeline, log)
	wf := NewWorkflowHandler(cfg.Workflows, cfg.TaskQueue, log)
	auth := requireBearer(cfg.APIToken)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/categories", h.ListCategories)
	r.GET("/tags", h.ListTags)
	r.GET("/items", h.ListItems)
	r.GET("/items/:id/meta", h.ItemMeta)
	r.GET("/export", h.Export)
	r.GET("/graph", h.Graph)

	protected := r.Group("/", auth)
	{
		protected.POST("/categories", h.CreateCategory)
		protected.POST("/capture", h.Capture)
		protected.PUT("/items/:id/tags", h.SetItemTags)
		protected.POST("/import", up.Import)
	}

	admin := r.Group("/admin", auth)
	{
		admin.POST("/categories/rename", h.RenameCategory)
		admin.POST("/tags/merge", h.MergeTags)
		admin.POST("/graph/rebuild", wf.StartGraphRebuild)
		admin.POST("/import/jobs", wf.StartImportJob)
		admin.GET("/workflows/:id", wf.GetWorkflowStatus)
	}
	return r
}

// requireBearer answers 401 without a bearer token and 403 with a wrong one.
func requireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		const prefix = "bearer "
		if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		got := strings.TrimSpace(h[len(prefix):])
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhishekdev057/studio-face-photos/internal/api/handlers"
	"github.com/abhishekdev057/studio-face-photos/internal/api/ws"
	"github.com/abhishekdev057/studio-face-photos/internal/auth"
	"github.com/abhishekdev057/studio-face-photos/internal/dedup"
	"github.com/abhishekdev057/studio-face-photos/internal/queue"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/internal/vision"
)

type RouterConfig struct {
	APIKey   string
	Store    storage.Store
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Gate     *dedup.Gate
	Hub      *ws.Hub
	// Extractor serves the synchronous search endpoint; uploads go through
	// the worker instead.
	Extractor      vision.Extractor
	MatchThreshold float64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Collections
	colH := handlers.NewCollectionHandler(cfg.Store, cfg.Producer)
	v1.POST("/collections", colH.Create)
	v1.GET("/collections", colH.List)
	v1.GET("/collections/:id", colH.Get)
	v1.POST("/collections/:id/reset", colH.Reset)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.Store, cfg.MinIO, cfg.Producer, cfg.Gate)
	v1.POST("/collections/:id/photos", photoH.Upload)
	v1.GET("/collections/:id/photos", photoH.List)
	v1.GET("/photos/:id", photoH.Get)
	v1.GET("/photos/:id/image", photoH.Image)
	v1.DELETE("/photos/:id", photoH.Delete)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Store, cfg.MinIO, cfg.Producer)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.GET("/persons/:id/photos", personH.Photos)
	v1.DELETE("/persons/:id", personH.Delete)

	// Search
	if cfg.Extractor != nil {
		searchH := handlers.NewSearchHandler(cfg.Store, cfg.Extractor, cfg.MatchThreshold)
		v1.POST("/search", searchH.ByFace)
	}

	return r
}

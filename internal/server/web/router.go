package web

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

type RouterConfig struct {
	Handler *Handler
	Logger  logging.Logger

	MaxUploadBytes int64
	UploadRPS      float64
	UploadBurst    int

	// Registerer and Gatherer back /metrics; both nil disables it.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}
	r.Use(Metrics(cfg.Registerer))

	h := cfg.Handler

	r.GET("/healthz", h.Health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group(common.APIPrefix)
	{
		api.POST("", RateLimit(cfg.UploadRPS, cfg.UploadBurst), LimitBody(cfg.MaxUploadBytes), h.Upload)
		api.GET("/:key", h.Result)
		api.GET("/:key/diagram", h.Diagram)
		api.GET("/:key/database", h.Database)
	}

	results := r.Group(common.ResultsPrefix)
	{
		results.GET("/:key", h.Result)
		results.GET("/:key/diagram", h.Diagram)
	}

	r.GET("/api/requests", h.ListRequests)

	return r
}

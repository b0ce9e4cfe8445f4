package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leozhang2048/ledger-service/internal/config"
	"github.com/leozhang2048/ledger-service/internal/metrics"
	"github.com/leozhang2048/ledger-service/internal/service"
	"go.uber.org/zap"
)

func NewRouter(svc *service.LedgerService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware())
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

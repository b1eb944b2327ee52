package http

import (
	"github.com/gin-gonic/gin"
	"github.com/potanshop/topup-admin/internal/config"
	"github.com/potanshop/topup-admin/internal/service"
	"go.uber.org/zap"
)

// Services bundles what the handlers call into.
type Services struct {
	Transfers *service.TransferService
	Queries   *service.QueryService
	Orders    *service.OrderService
}

func NewRouter(svcs Services, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svcs)
	return r
}

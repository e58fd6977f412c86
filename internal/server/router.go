package server

import (
	"net/http"
	"time"

	"github.com/giga89/memento-legacy/internal/auth"
	"github.com/giga89/memento-legacy/internal/config"
	"github.com/giga89/memento-legacy/internal/metrics"
	"github.com/giga89/memento-legacy/internal/mw"
	"github.com/giga89/memento-legacy/internal/service"
	"github.com/giga89/memento-legacy/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化中间件、REST API 以及 WebSocket 端点。
// dispatchSvc 由外部传入，因为 sweep 后台任务要和 HTTP 层共用同一个实例。
func SetupRouter(cfg config.Config, gdb *gorm.DB, hub *ws.Hub, dispatchSvc *service.DispatchService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，心跳和状态轮询都很频繁，上限放宽一些。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userSvc := service.NewUserService(gdb, cfg)
	switchSvc := service.NewSwitchService(gdb, dispatchSvc, hub)
	vaultSvc := service.NewVaultService(gdb)
	h := NewHandler(userSvc, switchSvc, vaultSvc, dispatchSvc)

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, gdb))
	authed.GET("/status", h.Status)
	authed.POST("/heartbeat", h.Heartbeat)
	authed.POST("/toggle-simulation", h.ToggleSimulation)
	authed.POST("/panic", h.Panic)
	authed.POST("/reset", h.Reset)
	authed.GET("/messages", h.ListMessages)
	authed.POST("/messages", h.CreateMessage)
	authed.PUT("/messages/:id", h.UpdateMessage)
	authed.DELETE("/messages/:id", h.DeleteMessage)
	authed.GET("/deliveries", h.ListDeliveries)

	r.GET("/ws", ws.Serve(hub, gdb, cfg))

	return r
}

package controllers

import (
	"net/http"

	"docker-monitor/internal/caddy"
	"docker-monitor/internal/models"
	"docker-monitor/services"

	"github.com/gin-gonic/gin"
)

type CaddyController struct {
	reconciler *caddy.Reconciler
}

// NewCaddyController reconciler为nil表示未启用反向代理同步
func NewCaddyController(monitor *services.Monitor) *CaddyController {
	return &CaddyController{reconciler: monitor.Reconciler()}
}

func (cc *CaddyController) RegisterRoutes(r *gin.Engine) {
	r.GET("/caddy/status", cc.Status)
	r.GET("/routes", cc.ListRoutes)
}

// @Summary 反向代理同步状态
// @Description 管理接口是否可用、最近一次同步结果和已下发的路由
// @Tags Caddy
// @Produce json
// @Success 200 {object} models.CaddyStatus
// @Router /caddy/status [get]
func (cc *CaddyController) Status(c *gin.Context) {
	if cc.reconciler == nil {
		c.JSON(http.StatusOK, models.CaddyStatus{Enabled: false, ManagedRoutes: []models.ManagedRoute{}})
		return
	}
	c.JSON(http.StatusOK, cc.reconciler.Status())
}

// @Summary 已下发的路由
// @Tags Caddy
// @Produce json
// @Success 200 {array} models.ManagedRoute
// @Router /routes [get]
func (cc *CaddyController) ListRoutes(c *gin.Context) {
	if cc.reconciler == nil {
		c.JSON(http.StatusOK, []models.ManagedRoute{})
		return
	}
	c.JSON(http.StatusOK, cc.reconciler.ManagedRoutes())
}

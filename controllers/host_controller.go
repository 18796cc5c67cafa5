package controllers

import (
	"net/http"

	"docker-monitor/services"

	"github.com/gin-gonic/gin"
)

type HostController struct {
	hosts *services.HostManager
}

func NewHostController(monitor *services.Monitor) *HostController {
	return &HostController{hosts: monitor.Hosts()}
}

func (h *HostController) RegisterRoutes(r *gin.Engine) {
	r.GET("/hosts", h.ListHosts)
	r.GET("/errors", h.ListErrors)
}

// @Summary 主机列表
// @Description 按配置顺序返回所有docker主机的连接状态
// @Tags Hosts
// @Produce json
// @Success 200 {array} models.Host
// @Router /hosts [get]
func (h *HostController) ListHosts(c *gin.Context) {
	c.JSON(http.StatusOK, h.hosts.Hosts())
}

// @Summary 主机错误
// @Description 有错误记录的主机，附带退避时间、下次重试时间和当前的恢复候选
// @Tags Hosts
// @Produce json
// @Success 200 {object} models.HostErrorsResponse
// @Router /errors [get]
func (h *HostController) ListErrors(c *gin.Context) {
	c.JSON(http.StatusOK, h.hosts.ErrorDetails())
}

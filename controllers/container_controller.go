package controllers

import (
	"net/http"

	"docker-monitor/internal/models"
	"docker-monitor/services"

	"github.com/gin-gonic/gin"
)

type ContainerController struct {
	inventory *services.Inventory
}

func NewContainerController(monitor *services.Monitor) *ContainerController {
	return &ContainerController{inventory: monitor.Inventory()}
}

/**
 * Register container query routes
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - /containers/summary is a static segment and wins over /containers/:id
 */
func (cc *ContainerController) RegisterRoutes(r *gin.Engine) {
	r.GET("/containers", cc.ListContainers)
	r.GET("/containers/summary", cc.Summary)
	r.GET("/containers/:id", cc.GetContainer)
	r.GET("/labels", cc.Labels)
	r.GET("/ips", cc.IPs)
}

// @Summary 被监控的容器
// @Tags Containers
// @Produce json
// @Success 200 {object} models.ContainersResponse
// @Router /containers [get]
func (cc *ContainerController) ListContainers(c *gin.Context) {
	list := cc.inventory.Snapshot()
	c.JSON(http.StatusOK, models.ContainersResponse{Containers: list, Count: len(list)})
}

// @Summary 按主机IP分组的容器
// @Tags Containers
// @Produce json
// @Success 200 {array} models.ContainerSummary
// @Router /containers/summary [get]
func (cc *ContainerController) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, cc.inventory.Summary())
}

// @Summary 查询单个容器
// @Description id可以是库存键的任意子串，也可以是短ID
// @Tags Containers
// @Produce json
// @Param id path string true "容器ID"
// @Success 200 {object} models.MonitoredContainer
// @Failure 404 {object} models.ErrorResponse
// @Router /containers/{id} [get]
func (cc *ContainerController) GetContainer(c *gin.Context) {
	mc, ok := cc.inventory.Find(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Code:  "container.not_found",
			Error: "Container not found",
		})
		return
	}
	c.JSON(http.StatusOK, mc)
}

// @Summary 容器的服务标签
// @Description 以容器名为键返回匹配前缀的标签
// @Tags Containers
// @Produce json
// @Success 200 {object} map[string]map[string]string
// @Router /labels [get]
func (cc *ContainerController) Labels(c *gin.Context) {
	out := make(map[string]map[string]string)
	for _, mc := range cc.inventory.Snapshot() {
		out[mc.Name] = mc.ServiceLabels
	}
	c.JSON(http.StatusOK, out)
}

// @Summary 容器IP
// @Description hostIp是路由使用的主机IP，allDockerIps是容器内部网络的IP
// @Tags Containers
// @Produce json
// @Success 200 {object} map[string]models.ContainerIPs
// @Router /ips [get]
func (cc *ContainerController) IPs(c *gin.Context) {
	out := make(map[string]models.ContainerIPs)
	for _, mc := range cc.inventory.Snapshot() {
		ips := []string{}
		for _, n := range mc.Networks {
			ips = append(ips, n.IP)
		}
		out[mc.Name] = models.ContainerIPs{
			HostIP:          mc.HostIP,
			DockerHostName:  mc.HostName,
			PrimaryDockerIP: mc.PrimaryIP,
			AllDockerIPs:    ips,
			Networks:        mc.Networks,
			Status:          mc.Status,
		}
	}
	c.JSON(http.StatusOK, out)
}

package controllers

import (
	"net/http"
	"sort"
	"time"

	"docker-monitor/internal/models"
	"docker-monitor/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	monitor *services.Monitor
}

/**
 * Create new API controller instance
 * @param {*services.Monitor} monitor - Running monitor whose state is exposed
 * @returns {*APIController} New API controller instance
 * @example
 * monitor, _ := services.NewMonitor(&config.Config, services.DefaultHostFactory(&config.Config))
 * controller := controllers.NewAPIController(monitor)
 */
func NewAPIController(monitor *services.Monitor) *APIController {
	return &APIController{
		monitor: monitor,
	}
}

/**
 * Register probe, metrics and schema routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", a.Health)
	r.GET("/healthz", a.Healthz)
	r.GET("/readiness", a.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/services/schema", a.ServicesSchema)
}

// @Summary 健康状态
// @Description 返回版本、运行时长、主机连接统计、容器数量和反向代理状态
// @Description 没有任何主机连接时返回503
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (a *APIController) Health(c *gin.Context) {
	resp := a.monitor.Health()
	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// @Summary 存活探针
// @Description 没有已连接主机，或者有严重错误的主机数不少于已连接主机数时返回503
// @Tags System
// @Produce json
// @Success 200 {object} models.ProbeResponse
// @Failure 503 {object} models.ProbeResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	hosts := a.monitor.Hosts()
	connected := len(hosts.Connected())
	if connected == 0 {
		c.JSON(http.StatusServiceUnavailable, models.ProbeResponse{
			Status: "unhealthy",
			Reason: "no_docker_hosts",
		})
		return
	}
	critical := hosts.CriticalHosts()
	if len(critical) >= connected {
		c.JSON(http.StatusServiceUnavailable, models.ProbeResponse{
			Status:         "unhealthy",
			Reason:         "critical_host_errors",
			ConnectedHosts: connected,
			FailedHosts:    critical,
		})
		return
	}
	c.JSON(http.StatusOK, models.ProbeResponse{Status: "healthy", ConnectedHosts: connected})
}

// @Summary 就绪探针
// @Description 至少一个主机已连接时就绪
// @Tags System
// @Produce json
// @Success 200 {object} models.ProbeResponse
// @Failure 503 {object} models.ProbeResponse
// @Router /readiness [get]
func (a *APIController) Readiness(c *gin.Context) {
	if err := a.monitor.Ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ProbeResponse{
			Status: "not_ready",
			Reason: "no_connected_hosts",
		})
		return
	}
	c.JSON(http.StatusOK, models.ProbeResponse{
		Status:          "ready",
		ConnectedHosts:  len(a.monitor.Hosts().Connected()),
		TotalContainers: a.monitor.Inventory().Count(),
	})
}

// @Summary 服务标签约定
// @Description 列出所有服务类型的必填/可选属性，未实现的类型标记implemented=false
// @Tags Labels
// @Produce json
// @Success 200 {object} models.SchemaResponse
// @Router /services/schema [get]
func (a *APIController) ServicesSchema(c *gin.Context) {
	processor := a.monitor.Processor()
	registry := processor.Registry()
	resp := models.SchemaResponse{
		Services:    []models.ServiceSchemaInfo{},
		Supported:   registry.Supported(),
		LabelPrefix: processor.Prefix(),
		Timestamp:   time.Now(),
	}
	for _, s := range registry.Schemas() {
		required := append([]string(nil), s.Required...)
		sort.Strings(required)
		resp.Services = append(resp.Services, models.ServiceSchemaInfo{
			Name:        s.Name,
			Description: s.Description,
			Required:    required,
			Optional:    s.Optional,
			Implemented: s.Implemented,
			Examples:    s.Examples,
		})
	}
	c.JSON(http.StatusOK, resp)
}

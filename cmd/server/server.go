package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docker-monitor/cmd/root"
	"docker-monitor/controllers"
	"docker-monitor/internal/caddy"
	"docker-monitor/internal/config"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/middleware"
	"docker-monitor/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var listenAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动监控服务和查询API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			config.Config.Server.Address = listenAddr
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx)
	},
}

// checkConfig 输出配置检查结果，有错误时拒绝启动
func checkConfig(cfg *config.AppConfig) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		logger.Warnf("Config: %s", w)
	}
	if !result.Valid() {
		for _, e := range result.Errors {
			logger.Errorf("Config: %s", e)
		}
		return fmt.Errorf("invalid configuration: %d errors", len(result.Errors))
	}
	return nil
}

/**
 * Run the monitor and the query API until ctx is cancelled
 * @param {context.Context} ctx - Cancelled on SIGINT/SIGTERM
 * @returns {error} Startup failure or API server failure
 * @description
 * - Refuses to start on configuration errors
 * - Fails when no docker host can be connected at startup
 * - On shutdown the API drains for up to 10s, then every loop and host is stopped
 */
func startServer(ctx context.Context) error {
	cfg := &config.Config
	if err := checkConfig(cfg); err != nil {
		return err
	}
	if cfg.Caddy.Enabled {
		caddy.WarnLoopbackAdminURL(ctx, cfg.Caddy.AdminURL)
	}

	monitor, err := services.NewMonitor(cfg, services.DefaultHostFactory(cfg))
	if err != nil {
		return err
	}
	monitor.Version = root.SoftwareVer

	// 监控循环在API之前启动，没有可用主机时直接退出
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	if err := monitor.Start(monitorCtx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.MetricsMiddleware())
	controllers.NewAPIController(monitor).RegisterRoutes(router)
	controllers.NewHostController(monitor).RegisterRoutes(router)
	controllers.NewContainerController(monitor).RegisterRoutes(router)
	controllers.NewCaddyController(monitor).RegisterRoutes(router)

	listener, err := CreateListener(cfg.Server.Address)
	if err != nil {
		cancelMonitor()
		_ = monitor.Wait()
		return err
	}
	srv := &http.Server{Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warnf("API server shutdown: %v", serr)
	}
	cancelMonitor()
	if werr := monitor.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

func init() {
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override server.address")
	root.RootCmd.AddCommand(serverCmd)

	serverCmd.Example = `  # run with the default config search path
  docker-monitor server

  # explicit config file and listen address
  docker-monitor server -c /etc/docker-monitor/config.yaml -l :9000`
}

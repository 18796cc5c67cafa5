package main

import (
	"os"

	_ "docker-monitor/cmd"
	"docker-monitor/cmd/root"
	"docker-monitor/internal/config"
	"docker-monitor/internal/logger"
)

func main() {
	// 服务器模式同时输出日志到控制台
	isServerMode := len(os.Args) > 1 && os.Args[1] == "server"
	logger.InitLogger(&config.Config.Log, isServerMode)

	if err := root.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package root

import (
	"docker-monitor/internal/config"
	"docker-monitor/internal/logger"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X docker-monitor/cmd/root.SoftwareVer=..." 注入
var SoftwareVer = ""
var BuildTime = ""
var BuildTag = ""
var BuildCommitId = ""

var configFile string

var RootCmd = &cobra.Command{
	Use:   "docker-monitor",
	Short: "多主机Docker容器标签监控",
	Long:  `docker-monitor监控本机和SSH远程主机上带服务标签的容器，并把它们同步为Caddy反向代理路由`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return nil
		}
		if err := config.ReloadConfig(configFile); err != nil {
			return err
		}
		logger.InitLogger(&config.Config.Log, cmd.Name() == "server")
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: search ./config.yaml, /etc/docker-monitor, $HOME/.docker-monitor)")
}

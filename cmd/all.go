package cmd

import (
	_ "docker-monitor/cmd/containers"
	_ "docker-monitor/cmd/hosts"
	_ "docker-monitor/cmd/misc"
	_ "docker-monitor/cmd/root"
	_ "docker-monitor/cmd/routes"
	_ "docker-monitor/cmd/server"
)

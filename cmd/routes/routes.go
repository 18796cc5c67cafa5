package routes

import (
	"fmt"
	"time"

	"docker-monitor/cmd/root"
	"docker-monitor/internal/models"
	"docker-monitor/internal/rpc"
	"docker-monitor/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Query reverse proxy routes managed by the monitor",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed caddy routes and the last sync result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRoutes()
	},
}

type routeColumns struct {
	Domain    string `json:"domain"`
	Upstream  string `json:"upstream"`
	Container string `json:"container"`
	Service   string `json:"service"`
	Created   string `json:"created"`
}

func listRoutes() error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var status models.CaddyStatus
	if err := client.GetJSON("/caddy/status", nil, &status); err != nil {
		return err
	}
	if !status.Enabled {
		fmt.Println("Caddy integration is disabled")
		return nil
	}

	var rows []*orderedmap.OrderedMap
	for _, r := range status.ManagedRoutes {
		recordMap, _ := utils.StructToOrderedMap(routeColumns{
			Domain:    r.Domain,
			Upstream:  r.Upstream,
			Container: r.ContainerName,
			Service:   r.ServiceName,
			Created:   r.CreatedAt.Format(time.RFC3339),
		})
		rows = append(rows, recordMap)
	}
	utils.PrintFormat(rows)

	fmt.Printf("\nAdmin API: %s (available: %t)\n", status.AdminURL, status.Available)
	if status.LastSync != nil {
		fmt.Printf("Last sync: %s, +%d -%d ~%d in %d attempts\n",
			status.LastSync.Time.Format(time.RFC3339), status.LastSync.Added,
			status.LastSync.Removed, status.LastSync.Modified, status.LastSync.Attempts)
	}
	if status.LastSyncError != "" {
		fmt.Printf("Last sync error: %s\n", status.LastSyncError)
	}
	return nil
}

func init() {
	routesCmd.AddCommand(listCmd)
	root.RootCmd.AddCommand(routesCmd)

	routesCmd.Example = `  docker-monitor routes list`
}

package containers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"docker-monitor/cmd/root"
	"docker-monitor/internal/models"
	"docker-monitor/internal/rpc"
	"docker-monitor/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var containersCmd = &cobra.Command{
	Use:   "containers",
	Short: "Query monitored containers",
}

var listCmd = &cobra.Command{
	Use:   "list [容器ID]",
	Short: "List monitored containers",
	Long:  "列出所有被监控的容器，指定ID(库存键的子串或短ID)时输出该容器的详细信息",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showContainer(args[0])
		}
		return listContainers()
	},
}

type containerColumns struct {
	Host     string `json:"host"`
	Name     string `json:"name"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	HostIP   string `json:"host_ip"`
	Services string `json:"services"`
}

// serviceNames 从服务标签中取出服务类型
func serviceNames(prefix string, labels map[string]string) string {
	seen := map[string]bool{}
	var names []string
	for k := range labels {
		rest := strings.TrimPrefix(k, prefix)
		svc, _, ok := strings.Cut(rest, ".")
		if !ok || seen[svc] {
			continue
		}
		seen[svc] = true
		names = append(names, svc)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func listContainers() error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var schema models.SchemaResponse
	if err := client.GetJSON("/services/schema", nil, &schema); err != nil {
		return err
	}
	var resp models.ContainersResponse
	if err := client.GetJSON("/containers", nil, &resp); err != nil {
		return err
	}
	var rows []*orderedmap.OrderedMap
	for _, mc := range resp.Containers {
		recordMap, _ := utils.StructToOrderedMap(containerColumns{
			Host:     mc.HostName,
			Name:     mc.Name,
			ID:       mc.ShortID,
			Status:   mc.Status,
			HostIP:   mc.HostIP,
			Services: serviceNames(schema.LabelPrefix, mc.ServiceLabels),
		})
		rows = append(rows, recordMap)
	}
	utils.PrintFormat(rows)
	fmt.Printf("\nTotal: %d\n", resp.Count)
	return nil
}

func showContainer(id string) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var mc models.MonitoredContainer
	if err := client.GetJSON("/containers/"+url.PathEscape(id), nil, &mc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	containersCmd.AddCommand(listCmd)
	root.RootCmd.AddCommand(containersCmd)

	containersCmd.Example = `  docker-monitor containers list
  docker-monitor containers list 3f2a9c`
}

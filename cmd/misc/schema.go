package misc

import (
	"fmt"
	"sort"
	"strings"

	"docker-monitor/cmd/root"
	"docker-monitor/internal/config"
	"docker-monitor/internal/labels"
	"docker-monitor/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List supported service label schemas",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printSchemas(labels.NewProcessor(config.Config.Docker.LabelPrefix, labels.DefaultRegistry()))
	},
}

type schemaColumns struct {
	Service     string `json:"service"`
	Implemented bool   `json:"implemented"`
	Required    string `json:"required"`
	Optional    string `json:"optional"`
	Description string `json:"description"`
}

// printSchemas 本地读取注册表，不需要连接服务
func printSchemas(p *labels.Processor) {
	var rows []*orderedmap.OrderedMap
	for _, s := range p.Registry().Schemas() {
		var optional []string
		for k, v := range s.Optional {
			if v == "" {
				optional = append(optional, k)
			} else {
				optional = append(optional, k+"="+v)
			}
		}
		sort.Strings(optional)
		row, _ := utils.StructToOrderedMap(schemaColumns{
			Service:     s.Name,
			Implemented: s.Implemented,
			Required:    strings.Join(s.Required, ","),
			Optional:    strings.Join(optional, ","),
			Description: s.Description,
		})
		rows = append(rows, row)
	}
	utils.PrintFormat(rows)
	fmt.Printf("\nLabel format: %s<service>.<property>=<value>\n", p.Prefix())
}

func init() {
	root.RootCmd.AddCommand(schemaCmd)
}

package hosts

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

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Query docker hosts of the running monitor",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List docker hosts and their connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHosts()
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show host errors with backoff and next retry time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listErrors()
	},
}

type hostColumns struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	IP          string `json:"ip"`
	Failures    uint   `json:"failures"`
	LastError   string `json:"last_error"`
	ConnectedAt string `json:"connected_at"`
}

func listHosts() error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var hosts []models.Host
	if err := client.GetJSON("/hosts", nil, &hosts); err != nil {
		return err
	}
	var rows []*orderedmap.OrderedMap
	for _, h := range hosts {
		row := hostColumns{
			Name:     h.Name,
			Kind:     h.Kind,
			Status:   string(h.Status),
			IP:       h.IPAddress,
			Failures: h.ConsecutiveFailures,
		}
		if h.LastError != nil {
			row.LastError = h.LastError.Message
		}
		if !h.ConnectedAt.IsZero() {
			row.ConnectedAt = h.ConnectedAt.Format(time.RFC3339)
		}
		recordMap, _ := utils.StructToOrderedMap(row)
		rows = append(rows, recordMap)
	}
	utils.PrintFormat(rows)
	return nil
}

type errorColumns struct {
	Host      string `json:"host"`
	Kind      string `json:"kind"`
	Failures  uint   `json:"failures"`
	Backoff   string `json:"backoff"`
	NextRetry string `json:"next_retry"`
	Error     string `json:"error"`
}

func listErrors() error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var resp models.HostErrorsResponse
	if err := client.GetJSON("/errors", nil, &resp); err != nil {
		return err
	}
	var rows []*orderedmap.OrderedMap
	for _, e := range resp.Errors {
		recordMap, _ := utils.StructToOrderedMap(errorColumns{
			Host:      e.Host,
			Kind:      e.Kind,
			Failures:  e.ConsecutiveFailures,
			Backoff:   (time.Duration(e.BackoffSeconds) * time.Second).String(),
			NextRetry: e.NextRetryAfter.Format(time.RFC3339),
			Error:     e.Error,
		})
		rows = append(rows, recordMap)
	}
	utils.PrintFormat(rows)
	if len(resp.RecoveryCandidates) > 0 {
		fmt.Printf("\nRecovery candidates: %v\n", resp.RecoveryCandidates)
	}
	return nil
}

func init() {
	hostsCmd.AddCommand(listCmd)
	hostsCmd.AddCommand(errorsCmd)
	root.RootCmd.AddCommand(hostsCmd)

	hostsCmd.Example = `  docker-monitor hosts list
  docker-monitor hosts errors`
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// portEntry mirrors one element of GET /api/v1/ports.
type portEntry struct {
	Port      int    `json:"port" yaml:"port"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	LinkUp    bool   `json:"link_up" yaml:"link_up"`
	RxPackets uint64 `json:"rx_packets" yaml:"rx_packets"`
	TxPackets uint64 `json:"tx_packets" yaml:"tx_packets"`
	RxBytes   uint64 `json:"rx_bytes" yaml:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes" yaml:"tx_bytes"`
	RxDropped uint64 `json:"rx_dropped" yaml:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped" yaml:"tx_dropped"`
	RxCRCErr  uint64 `json:"rx_crc_err" yaml:"rx_crc_err"`
}

// portsResponse mirrors GET /api/v1/ports.
type portsResponse struct {
	Ports []portEntry `json:"ports" yaml:"ports"`
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "Show per-port counters and link state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pr portsResponse
			if err := apiGet("/api/v1/ports", &pr); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := render(pr, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			rows := make([][]string, 0, len(pr.Ports))
			for _, p := range pr.Ports {
				rows = append(rows, []string{
					fmt.Sprintf("%d", p.Port),
					boolMark(p.Enabled),
					boolMark(p.LinkUp),
					fmt.Sprintf("%d", p.RxPackets),
					fmt.Sprintf("%d", p.TxPackets),
					fmt.Sprintf("%d", p.RxBytes),
					fmt.Sprintf("%d", p.TxBytes),
					fmt.Sprintf("%d", p.RxDropped),
					fmt.Sprintf("%d", p.TxDropped),
				})
			}
			cmd.Print(table(
				[]string{"PORT", "ENABLED", "LINK", "RX PKTS", "TX PKTS", "RX BYTES", "TX BYTES", "RX DROP", "TX DROP"},
				rows,
			))
			return nil
		},
	}
}
